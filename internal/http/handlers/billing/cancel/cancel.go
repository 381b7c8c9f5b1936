// Package cancel реализует HTTP-обработчик остановки продления подписки.
// Локальное состояние не меняется: доступ сохраняется до конца
// оплаченного периода.
package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/middlewarectx"
	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/billing"
)

// Handler обрабатывает HTTP-запросы остановки продления подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики отмены подписки.
type Service interface {
	CancelAtPeriodEnd(ctx context.Context, userUID string) error
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Остановить продление подписки
// @Description Просит провайдера не продлевать подписку; доступ сохраняется до конца оплаченного периода.
// @Tags Billing
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} response.Response "Продление остановлено"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Активная подписка отсутствует"
// @Failure 502 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /stripe/cancel-subscription [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	if err := h.service.CancelAtPeriodEnd(r.Context(), userUID); err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			log.Warn("no active subscription", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no active subscription"))
			return
		}
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("failed to cancel subscription"))
		return
	}

	log.Info("subscription renewal stopped", slog.String("user_uid", userUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "subscription will not renew after the current period",
	}))
}
