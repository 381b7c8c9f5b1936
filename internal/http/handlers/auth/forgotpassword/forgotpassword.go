// Package forgotpassword реализует HTTP-обработчик запроса
// восстановления пароля. Ответ не раскрывает, существует ли
// учётная запись с указанной почтой.
package forgotpassword

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
)

// Request — входные данные для восстановления пароля.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// Handler обрабатывает HTTP-запросы восстановления пароля.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики восстановления пароля.
type Service interface {
	ForgotPassword(ctx context.Context, email string)
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
// @Summary Запрос восстановления пароля
// @Description Принимает почту и отвечает одинаково вне зависимости от существования учётной записи.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Почта пользователя"
// @Success 200 {object} response.Response "Запрос принят"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /forgot-password [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.forgotpassword"

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

	h.service.ForgotPassword(r.Context(), req.Email)

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "if the email exists, a reset link has been sent",
	}))
}
