// Package screenshot реализует HTTP-обработчик приёма скриншота оплаты.
//
// Handler принимает ссылку на скриншот, формирует заявку с готовой
// командой выдачи и публикует её оператору. Выдача доступа остаётся
// ручным действием оператора.
package screenshot

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
	conversation "github.com/magabrotheeeer/credential-broker/internal/services/conversation"
)

// Request — структура входных данных для отправки скриншота.
type Request struct {
	UserID   string `json:"user_id" validate:"required"`
	PhotoRef string `json:"photo_ref" validate:"required"`
}

// Handler обрабатывает запросы на отправку скриншота оплаты.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики диалога покупки.
type Service interface {
	SubmitScreenshot(ctx context.Context, userID, photoRef string) (*models.Order, error)
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
// @Summary Отправка скриншота оплаты
// @Description Принимает скриншот, формирует заявку и отправляет её оператору.
// @Tags Conversation
// @Accept  json
// @Produce  json
// @Param request body Request true "Пользователь и ссылка на скриншот"
// @Success 200 {object} map[string]any "Заявка отправлена оператору"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Операция не соответствует состоянию диалога"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /conversation/screenshot [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.conversation.screenshot"

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

	order, err := h.service.SubmitScreenshot(r.Context(), req.UserID, req.PhotoRef)
	if err != nil {
		if errors.Is(err, conversation.ErrWrongState) {
			log.Error("wrong conversation state", sl.Err(err))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("operation does not match conversation state"))
			return
		}
		log.Error("failed to submit screenshot", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not submit screenshot"))
		return
	}

	log.Info("order submitted",
		slog.String("user_id", req.UserID), slog.String("order_id", order.OrderID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"order": order,
	}))
}
