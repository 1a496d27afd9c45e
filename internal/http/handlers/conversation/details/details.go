// Package details реализует HTTP-обработчик экрана «мои данные».
//
// Handler извлекает идентификатор пользователя из URL и возвращает его
// закреплённую учётную запись и срок действия плана.
package details

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
	conversation "github.com/magabrotheeeer/credential-broker/internal/services/conversation"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// Handler обрабатывает запросы на просмотр данных пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики диалога покупки.
type Service interface {
	Details(ctx context.Context, userID string) (*conversation.UserDetails, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Данные пользователя
// @Description Возвращает закреплённую учётную запись и срок действия плана.
// @Tags Conversation
// @Produce  json
// @Param user_id path string true "Идентификатор пользователя"
// @Success 200 {object} map[string]any "Данные пользователя"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /conversation/details/{user_id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.conversation.details"

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

	details, err := h.service.Details(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Error("user not found", slog.String("user_id", userID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to read user details", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read user details"))
		return
	}

	log.Info("details served", slog.String("user_id", userID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"details": details,
	}))
}
