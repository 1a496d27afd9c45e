// Package credadd реализует HTTP-обработчик добавления учётной записи в пул.
package credadd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/credential-broker/internal/http/response"
	"github.com/magabrotheeeer/credential-broker/internal/lib/sl"
	"github.com/magabrotheeeer/credential-broker/internal/models"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// Request — структура входных данных для добавления учётной записи.
// Days задаёт срок жизни записи в днях от момента добавления.
type Request struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Secret   string `json:"secret" validate:"required,min=6"`
	Days     int    `json:"days" validate:"required,min=1"`
}

// Handler обрабатывает запросы на добавление учётной записи.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс административной бизнес-логики.
type Service interface {
	AddCredential(ctx context.Context, username, secret string, days int) (*models.Credential, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Добавление учётной записи
// @Description Добавляет свободную учётную запись в пул с заданным сроком жизни.
// @Tags Admin
// @Security BearerAuth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учётная запись и срок жизни в днях"
// @Success 200 {object} map[string]any "Добавленная учётная запись"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Учётная запись уже существует"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/credentials [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.credadd"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	cred, err := h.service.AddCredential(r.Context(), req.Username, req.Secret, req.Days)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateCredential) {
			log.Error("credential already exists", slog.String("username", req.Username))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("credential already exists"))
			return
		}
		log.Error("failed to add credential", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not add credential"))
		return
	}

	log.Info("credential added", slog.String("username", cred.Username))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"credential": cred,
	}))
}
