// Package grant реализует HTTP-обработчик выдачи доступа пользователю.
//
// Handler закрепляет за пользователем лучшую подходящую учётную запись,
// активирует план на заданное число дней и ставит отложенный возврат.
package grant

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
	poolservice "github.com/magabrotheeeer/credential-broker/internal/services/pool"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// Request — структура входных данных для выдачи доступа.
type Request struct {
	UserID string `json:"user_id" validate:"required"`
	Days   int    `json:"days" validate:"required,min=1"`
}

// Handler обрабатывает запросы на выдачу доступа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс административной бизнес-логики.
type Service interface {
	GrantAccess(ctx context.Context, userID string, days int) (*models.Credential, error)
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
// @Summary Выдача доступа
// @Description Закрепляет учётную запись за пользователем и активирует план.
// @Tags Admin
// @Security BearerAuth
// @Accept  json
// @Produce  json
// @Param request body Request true "Пользователь и длительность плана"
// @Success 200 {object} map[string]any "Выданная учётная запись"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 410 {object} response.ErrorResponse "Нет подходящей учётной записи"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/grant [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grant"

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

	cred, err := h.service.GrantAccess(r.Context(), req.UserID, req.Days)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			log.Error("user not found", slog.String("user_id", req.UserID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, poolservice.ErrOutOfStock):
			log.Error("no credential covers requested duration",
				slog.String("user_id", req.UserID), slog.Int("days", req.Days))
			w.WriteHeader(http.StatusGone)
			render.JSON(w, r, response.Error("no credential covers requested duration"))
		default:
			log.Error("failed to grant access", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not grant access"))
		}
		return
	}

	log.Info("access granted",
		slog.String("user_id", req.UserID), slog.String("credential", cred.Username))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"credential": cred,
	}))
}
