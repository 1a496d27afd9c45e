// Package crededit реализует HTTP-обработчик правки учётной записи пула.
//
// Правка меняет секрет и срок жизни записи. Статус и закрепление за
// пользователем при этом не трогаются.
package crededit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/credential-broker/internal/http/response"
	"github.com/magabrotheeeer/credential-broker/internal/lib/sl"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// Request — структура входных данных для правки учётной записи.
type Request struct {
	Secret string `json:"secret" validate:"required,min=6"`
	Days   int    `json:"days" validate:"required,min=1"`
}

// Handler обрабатывает запросы на правку учётной записи.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс административной бизнес-логики.
type Service interface {
	EditCredential(ctx context.Context, username, newSecret string, newDays int) error
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
// @Summary Правка учётной записи
// @Description Меняет секрет и срок жизни учётной записи пула.
// @Tags Admin
// @Security BearerAuth
// @Accept  json
// @Produce  json
// @Param username path string true "Имя учётной записи"
// @Param request body Request true "Новый секрет и срок жизни в днях"
// @Success 200 {object} map[string]any "Учётная запись обновлена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Учётная запись не найдена"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/credentials/{username} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.crededit"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	username := chi.URLParam(r, "username")
	if username == "" {
		log.Error("missing username in url")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing username in url"))
		return
	}

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

	if err := h.service.EditCredential(r.Context(), username, req.Secret, req.Days); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			log.Error("credential not found", slog.String("username", username))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("credential not found"))
			return
		}
		log.Error("failed to edit credential", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not edit credential"))
		return
	}

	log.Info("credential updated", slog.String("username", username))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"username": username,
	}))
}
