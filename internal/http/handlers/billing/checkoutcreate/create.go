// Package checkoutcreate реализует HTTP-обработчик открытия платёжной
// сессии у провайдера.
package checkoutcreate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/firstmodai/firstmod-backend/internal/http/middlewarectx"
	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/billing"
)

// Request — входные данные для открытия платёжной сессии.
type Request struct {
	PlanType string `json:"plan_type" validate:"required,oneof=monthly yearly"`
}

// Handler обрабатывает HTTP-запросы открытия платёжной сессии.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики открытия платёжной сессии.
type Service interface {
	CreateCheckout(ctx context.Context, userUID, planType string) (string, error)
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Открыть платёжную сессию
// @Description Создает сессию оплаты у провайдера и возвращает URL для переадресации.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param request body Request true "Выбранный тариф"
// @Success 200 {object} map[string]any "URL платёжной сессии"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или тариф"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /stripe/create-checkout-session [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkoutcreate"

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

	checkoutURL, err := h.service.CreateCheckout(r.Context(), userUID, req.PlanType)
	if err != nil {
		if errors.Is(err, billing.ErrPlanInvalid) {
			log.Warn("unknown plan type", slog.String("plan_type", req.PlanType))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown plan type"))
			return
		}
		log.Error("failed to create checkout session", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("failed to create checkout session"))
		return
	}

	log.Info("checkout session created", slog.String("user_uid", userUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"checkout_url": checkoutURL,
	}))
}
