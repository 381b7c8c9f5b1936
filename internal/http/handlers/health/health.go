// Package health реализует HTTP-обработчик проверки работоспособности.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/response"
)

// Handler обрабатывает запросы проверки работоспособности.
type Handler struct {
	log *slog.Logger
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{
		log: log,
	}
}

// ServeHTTP godoc
// @Summary Проверка работоспособности
// @Tags Health
// @Produce  json
// @Success 200 {object} response.Response "Сервис работает"
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status": "ok",
	}))
}
