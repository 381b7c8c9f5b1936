// Package remove реализует HTTP-обработчик удаления записи контента.
// Удалять можно только собственные записи; файл удаляется по возможности.
package remove

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/middlewarectx"
	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/media"
)

// Handler обрабатывает HTTP-запросы удаления контента.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики удаления контента.
type Service interface {
	Remove(ctx context.Context, id int, userUID string) error
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Удаление записи контента
// @Description Удаляет запись о контенте текущего пользователя вместе с файлом.
// @Tags Media
// @Produce  json
// @Security ApiKeyAuth
// @Param id path int true "Идентификатор записи"
// @Success 200 {object} response.Response "Запись удалена"
// @Failure 400 {object} response.ErrorResponse "Некорректный идентификатор"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Запись не найдена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /media/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.media.remove"

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

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		log.Error("invalid animation id", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid animation id"))
		return
	}

	if err := h.service.Remove(r.Context(), id, userUID); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			log.Warn("animation not found", slog.Int("animation_id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("animation not found"))
			return
		}
		log.Error("failed to remove content", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("content removed", slog.Int("animation_id", id))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "animation deleted successfully",
	}))
}
