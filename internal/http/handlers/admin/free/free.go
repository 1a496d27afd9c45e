// Package free реализует HTTP-обработчик ручного освобождения учётной записи.
//
// Освобождение возвращает учётную запись пользователя в пул и отзывает
// его доступ, чтобы не оставлять активный план без записи.
package free

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
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// Request — структура входных данных для освобождения учётной записи.
type Request struct {
	UserID string `json:"user_id" validate:"required"`
}

// Handler обрабатывает запросы на освобождение учётной записи.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс административной бизнес-логики.
type Service interface {
	FreeCredential(ctx context.Context, userID string) (string, error)
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
// @Summary Освобождение учётной записи
// @Description Возвращает учётную запись пользователя в пул и отзывает его доступ.
// @Tags Admin
// @Security BearerAuth
// @Accept  json
// @Produce  json
// @Param request body Request true "Идентификатор пользователя"
// @Success 200 {object} map[string]any "Освобождённая учётная запись"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "За пользователем нет учётной записи"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/free [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.free"

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

	freed, err := h.service.FreeCredential(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNoCredentialAssigned) ||
			errors.Is(err, repository.ErrUserNotFound) {
			log.Error("nothing to free", slog.String("user_id", req.UserID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no credential assigned to user"))
			return
		}
		log.Error("failed to free credential", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not free credential"))
		return
	}

	log.Info("credential freed",
		slog.String("user_id", req.UserID), slog.String("credential", freed))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"credential": freed,
	}))
}
