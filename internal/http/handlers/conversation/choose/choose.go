// Package choose реализует HTTP-обработчик выбора тарифа в диалоге покупки.
//
// Handler проверяет доступность выбранной длительности и возвращает
// реквизиты для оплаты. Если тариф закончился, диалог остаётся в выборе.
package choose

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
	conversation "github.com/magabrotheeeer/credential-broker/internal/services/conversation"
	poolservice "github.com/magabrotheeeer/credential-broker/internal/services/pool"
)

// Request — структура входных данных для выбора тарифа.
type Request struct {
	UserID string `json:"user_id" validate:"required"`
	Days   int    `json:"days" validate:"required,min=1"`
}

// Handler обрабатывает запросы на выбор тарифа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики диалога покупки.
type Service interface {
	ChoosePlan(ctx context.Context, userID string, days int) (*conversation.PaymentInstructions, error)
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
// @Summary Выбор тарифа
// @Description Фиксирует выбранную длительность и возвращает реквизиты оплаты.
// @Tags Conversation
// @Accept  json
// @Produce  json
// @Param request body Request true "Пользователь и длительность тарифа"
// @Success 200 {object} map[string]any "Реквизиты для оплаты"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Операция не соответствует состоянию диалога"
// @Failure 410 {object} response.ErrorResponse "Тариф закончился"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /conversation/choose [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.conversation.choose"

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

	instructions, err := h.service.ChoosePlan(r.Context(), req.UserID, req.Days)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrWrongState):
			log.Error("wrong conversation state", sl.Err(err))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("operation does not match conversation state"))
		case errors.Is(err, poolservice.ErrOutOfStock):
			log.Info("plan out of stock",
				slog.String("user_id", req.UserID), slog.Int("days", req.Days))
			w.WriteHeader(http.StatusGone)
			render.JSON(w, r, response.Error("selected plan is out of stock"))
		default:
			log.Error("failed to choose plan", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not choose plan"))
		}
		return
	}

	log.Info("plan selected", slog.String("user_id", req.UserID), slog.Int("days", req.Days))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"payment": instructions,
	}))
}
