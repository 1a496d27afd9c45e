// Package inspect реализует HTTP-обработчик просмотра пользователя оператором.
package inspect

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/credential-broker/internal/http/response"
	"github.com/magabrotheeeer/credential-broker/internal/lib/sl"
	"github.com/magabrotheeeer/credential-broker/internal/models"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// Handler обрабатывает запросы на просмотр пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс административной бизнес-логики.
type Service interface {
	InspectUser(ctx context.Context, userID string) (*models.UserInspection, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Просмотр пользователя
// @Description Возвращает пользователя вместе с закреплённой за ним учётной записью.
// @Tags Admin
// @Security BearerAuth
// @Produce  json
// @Param user_id path string true "Идентификатор пользователя"
// @Success 200 {object} map[string]any "Пользователь и его учётная запись"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{user_id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.inspect"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		log.Error("missing user_id in url")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing user_id in url"))
		return
	}

	inspection, err := h.service.InspectUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Error("user not found", slog.String("user_id", userID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to inspect user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not inspect user"))
		return
	}

	log.Info("user inspected", slog.String("user_id", userID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user": inspection,
	}))
}
