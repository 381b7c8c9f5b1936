// Package verifyemail реализует HTTP-обработчик подтверждения почты
// одноразовым кодом.
package verifyemail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/auth"
)

// Request — входные данные для подтверждения почты.
type Request struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// Handler обрабатывает HTTP-запросы подтверждения почты.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики верификации.
type Service interface {
	VerifyOTP(ctx context.Context, email, code string) error
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
// @Summary Подтверждение почты кодом
// @Description Проверяет одноразовый код и активирует учётную запись.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Почта и код верификации"
// @Success 200 {object} response.Response "Почта подтверждена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или код"
// @Failure 409 {object} response.ErrorResponse "Почта уже подтверждена"
// @Failure 410 {object} response.ErrorResponse "Срок действия кода истёк"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /verify-email [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verifyemail"

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

	if err := h.service.VerifyOTP(r.Context(), req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCode):
			log.Warn("invalid verification code", slog.String("email", req.Email))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid verification code"))
		case errors.Is(err, auth.ErrCodeExpired):
			log.Warn("verification code expired", slog.String("email", req.Email))
			w.WriteHeader(http.StatusGone)
			render.JSON(w, r, response.Error("verification code has expired"))
		case errors.Is(err, auth.ErrAlreadyVerified):
			log.Warn("email already verified", slog.String("email", req.Email))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("email already verified"))
		default:
			log.Error("verification failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	log.Info("email verified", slog.String("email", req.Email))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "email verified successfully",
	}))
}
