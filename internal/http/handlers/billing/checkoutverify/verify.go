// Package checkoutverify реализует HTTP-обработчик синхронной проверки
// платёжной сессии после возврата пользователя со страницы оплаты.
package checkoutverify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/middlewarectx"
	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/billing"
)

// Handler обрабатывает HTTP-запросы проверки платёжной сессии.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики проверки платежа.
type Service interface {
	VerifyCheckout(ctx context.Context, userUID, sessionID string) (*billing.CheckoutResult, error)
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверка платёжной сессии
// @Description Запрашивает состояние сессии у провайдера; оплаченная сессия применяется идемпотентно.
// @Tags Billing
// @Produce  json
// @Security ApiKeyAuth
// @Param id path string true "Идентификатор платёжной сессии"
// @Success 200 {object} map[string]any "Состояние оплаты"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Сессия открыта для другого пользователя"
// @Failure 502 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /stripe/verify-session/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkoutverify"

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

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		log.Error("missing session id")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing session id"))
		return
	}

	result, err := h.service.VerifyCheckout(r.Context(), userUID, sessionID)
	if err != nil {
		if errors.Is(err, billing.ErrCheckoutOwner) {
			log.Warn("checkout session owner mismatch", slog.String("session_id", sessionID))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("checkout session belongs to another user"))
			return
		}
		log.Error("failed to verify checkout session", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("failed to verify checkout session"))
		return
	}

	if !result.Paid {
		log.Info("checkout session is not paid yet", slog.String("session_id", sessionID))
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"payment_status": "pending",
		}))
		return
	}

	log.Info("checkout session verified", slog.String("session_id", sessionID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"payment_status":        "complete",
		"plan_type":             result.PlanType,
		"subscription_end_date": result.SubscriptionEndDate,
	}))
}
