// Package webhook реализует HTTP-обработчик событий платёжного провайдера.
//
// Подпись проверяется по сырому телу запроса до разбора JSON; запрос с
// неверной подписью отклоняется. Успешный ответ подтверждает доставку,
// ошибка обработки заставляет провайдера повторить её позже.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/billing"
)

// SignatureHeader заголовок с подписью тела вебхука.
const SignatureHeader = "Stripe-Signature"

// Handler обрабатывает HTTP-запросы вебхука платёжного провайдера.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики обработки событий.
type Service interface {
	VerifySignature(body []byte, signature string) bool
	ProcessEvent(ctx context.Context, event billing.Event) error
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Принимает события оплаты, продления и отмены подписки. Запрос подписан HMAC-SHA256 по телу.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись тела запроса"
// @Success 200 {object} response.Response "Событие обработано"
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или JSON"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки события"
// @Router /stripe/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if !h.service.VerifySignature(body, signature) {
		log.Error("invalid webhook signature")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var event billing.Event
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to decode event", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.service.ProcessEvent(r.Context(), event); err != nil {
		log.Error("failed to process event", slog.String("type", event.Type), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to process event"))
		return
	}

	log.Info("webhook event processed", slog.String("type", event.Type))
	render.JSON(w, r, response.OK())
}
