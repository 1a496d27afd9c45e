// Package credlist реализует HTTP-обработчик просмотра пула учётных записей.
//
// Handler возвращает свободные записи, занятые записи с их держателями
// либо обе группы сразу, в зависимости от query-параметра status.
package credlist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/credential-broker/internal/http/response"
	"github.com/magabrotheeeer/credential-broker/internal/lib/sl"
	"github.com/magabrotheeeer/credential-broker/internal/models"
)

// Handler обрабатывает запросы на просмотр пула.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс административной бизнес-логики.
type Service interface {
	ListAvailable(ctx context.Context) ([]*models.Credential, error)
	ListInUse(ctx context.Context) ([]*models.CredentialInUse, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Просмотр пула учётных записей
// @Description Возвращает учётные записи пула, при status=available или status=in_use только соответствующую группу.
// @Tags Admin
// @Security BearerAuth
// @Produce  json
// @Param status query string false "Фильтр по статусу: available или in_use"
// @Success 200 {object} map[string]any "Учётные записи пула"
// @Failure 400 {object} response.ErrorResponse "Неизвестный статус"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/credentials [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.credlist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	status := r.URL.Query().Get("status")
	data := map[string]any{}

	if status == "" || status == models.StatusAvailable {
		available, err := h.service.ListAvailable(r.Context())
		if err != nil {
			log.Error("failed to list available credentials", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not list credentials"))
			return
		}
		data["available"] = available
	}

	if status == "" || status == models.StatusInUse {
		inUse, err := h.service.ListInUse(r.Context())
		if err != nil {
			log.Error("failed to list credentials in use", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not list credentials"))
			return
		}
		data["in_use"] = inUse
	}

	if len(data) == 0 {
		log.Error("unknown status filter", slog.String("status", status))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown status filter"))
		return
	}

	log.Info("credentials listed", slog.String("status", status))
	render.JSON(w, r, response.StatusOKWithData(data))
}
