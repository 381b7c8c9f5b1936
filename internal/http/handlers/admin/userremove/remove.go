// Package userremove реализует HTTP-обработчик удаления пользователя
// администратором. Удаление собственной учётной записи запрещено.
package userremove

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
	"github.com/firstmodai/firstmod-backend/internal/services/auth"
)

// Handler обрабатывает HTTP-запросы удаления пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики удаления пользователя.
type Service interface {
	DeleteAccount(ctx context.Context, targetUID, callerUID string) error
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Удаление пользователя
// @Description Удаляет учётную запись вместе с журналом подписок и контентом.
// @Tags Admin
// @Produce  json
// @Security ApiKeyAuth
// @Param id path string true "Идентификатор пользователя"
// @Success 200 {object} response.Response "Пользователь удалён"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Удаление собственной учётной записи запрещено"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.userremove"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	callerUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || callerUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	targetUID := chi.URLParam(r, "id")
	if targetUID == "" {
		log.Error("missing user id")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing user id"))
		return
	}

	if err := h.service.DeleteAccount(r.Context(), targetUID, callerUID); err != nil {
		switch {
		case errors.Is(err, auth.ErrSelfDelete):
			log.Warn("self delete forbidden", slog.String("user_uid", callerUID))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("cannot delete your own account"))
		case errors.Is(err, auth.ErrUserNotFound):
			log.Warn("user not found", slog.String("user_uid", targetUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to delete user", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	log.Info("user deleted", slog.String("user_uid", targetUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "user deleted successfully",
	}))
}
