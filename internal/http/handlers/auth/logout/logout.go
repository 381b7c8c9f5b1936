// Package logout реализует HTTP-обработчик выхода из системы.
package logout

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/middlewarectx"
	"github.com/firstmodai/firstmod-backend/internal/http/response"
)

// Handler обрабатывает HTTP-запросы выхода из системы.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики выхода.
type Service interface {
	Logout(userUID string)
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Выход из системы
// @Description Сбрасывает кэшированный снимок сессии пользователя.
// @Tags Auth
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} response.Response "Выход выполнен"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"

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

	h.service.Logout(userUID)
	log.Info("logout success", slog.String("user_uid", userUID))
	render.JSON(w, r, response.OK())
}
