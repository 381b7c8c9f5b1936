// Package upgrade реализует HTTP-обработчик оформления подписки
// по данным банковской карты. Карта проходит полную проверку до
// каких-либо изменений в учётной записи; первая найденная ошибка
// карты возвращается клиенту как есть.
package upgrade

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
	"github.com/firstmodai/firstmod-backend/internal/lib/card"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/billing"
)

// Request — входные данные для оформления подписки по карте.
type Request struct {
	PlanType   string `json:"plan_type" validate:"required,oneof=monthly yearly"`
	CardNumber string `json:"card_number" validate:"required"`
	Expiry     string `json:"expiry" validate:"required"`
	CVV        string `json:"cvv" validate:"required"`
	Holder     string `json:"holder" validate:"required"`
}

// Handler обрабатывает HTTP-запросы оформления подписки по карте.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики оформления по карте.
type Service interface {
	UpgradeWithCard(ctx context.Context, userUID, planType string, details card.Details) error
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
// @Summary Оформить подписку по карте
// @Description Проверяет данные карты и применяет оплату выбранного тарифа.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param request body Request true "Тариф и данные карты"
// @Success 200 {object} response.Response "Подписка оформлена"
// @Failure 400 {object} response.ErrorResponse "Ошибка проверки карты или тарифа"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /subscription/update [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.upgrade"

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

	details := card.Details{
		Number: req.CardNumber,
		Expiry: req.Expiry,
		CVV:    req.CVV,
		Holder: req.Holder,
	}
	if err := h.service.UpgradeWithCard(r.Context(), userUID, req.PlanType, details); err != nil {
		if isCardError(err) || errors.Is(err, billing.ErrPlanInvalid) {
			log.Warn("card validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		log.Error("failed to upgrade subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("subscription upgraded", slog.String("user_uid", userUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "subscription updated successfully",
	}))
}

func isCardError(err error) bool {
	for _, cardErr := range []error{
		card.ErrNumberFormat, card.ErrLuhnCheck, card.ErrExpiryFormat,
		card.ErrExpired, card.ErrCVVFormat, card.ErrHolderName,
	} {
		if errors.Is(err, cardErr) {
			return true
		}
	}
	return false
}
