// Package verifylink реализует HTTP-обработчик подтверждения почты
// по токену из письма со ссылкой.
package verifylink

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/auth"
)

// Handler обрабатывает HTTP-запросы подтверждения почты по ссылке.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики верификации по токену.
type Service interface {
	VerifyToken(ctx context.Context, token string) error
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Подтверждение почты по ссылке
// @Description Проверяет токен из письма и активирует учётную запись.
// @Tags Auth
// @Produce  json
// @Param token query string true "Токен верификации"
// @Success 200 {object} response.Response "Почта подтверждена"
// @Failure 400 {object} response.ErrorResponse "Токен отсутствует или неверен"
// @Failure 409 {object} response.ErrorResponse "Почта уже подтверждена"
// @Failure 410 {object} response.ErrorResponse "Срок действия токена истёк"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /verify-link [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verifylink"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token := r.URL.Query().Get("token")
	if token == "" {
		log.Error("missing verification token")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing verification token"))
		return
	}

	if err := h.service.VerifyToken(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCode):
			log.Warn("invalid verification token")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid verification token"))
		case errors.Is(err, auth.ErrCodeExpired):
			log.Warn("verification token expired")
			w.WriteHeader(http.StatusGone)
			render.JSON(w, r, response.Error("verification token has expired"))
		case errors.Is(err, auth.ErrAlreadyVerified):
			log.Warn("email already verified")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("email already verified"))
		default:
			log.Error("verification failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	log.Info("email verified by link")
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "email verified successfully",
	}))
}
