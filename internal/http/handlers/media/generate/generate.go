// Package generate реализует HTTP-обработчик запуска генерации контента
// по загруженному файлу. Один и тот же обработчик обслуживает оба
// инструмента, конкретный инструмент задаётся при монтировании маршрута.
package generate

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/middlewarectx"
	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/models"
	"github.com/firstmodai/firstmod-backend/internal/services/media"
)

// Handler обрабатывает HTTP-запросы генерации контента.
type Handler struct {
	log      *slog.Logger
	service  Service
	toolType string
}

// Service описывает интерфейс бизнес-логики генерации.
type Service interface {
	SaveUpload(file multipart.File, header *multipart.FileHeader) (string, error)
	Generate(ctx context.Context, userUID, toolType, inputPath string) (*models.Animation, error)
}

// New создает новый экземпляр Handler для заданного инструмента.
func New(log *slog.Logger, service Service, toolType string) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		toolType: toolType,
	}
}

// ServeHTTP godoc
// @Summary Запуск генерации контента
// @Description Принимает файл и запускает генерацию. Бэкенд генерации пока недоступен.
// @Tags Media
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param file formData file true "Исходный файл"
// @Success 201 {object} map[string]any "Запись о контенте создана"
// @Failure 400 {object} response.ErrorResponse "Файл отсутствует или тип не поддерживается"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 413 {object} response.ErrorResponse "Файл слишком большой"
// @Failure 501 {object} response.ErrorResponse "Бэкенд генерации недоступен"
// @Router /media/animate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.media.generate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("tool_type", h.toolType),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize)
	if err := r.ParseMultipartForm(media.MaxUploadSize); err != nil {
		log.Error("failed to parse multipart form", sl.Err(err))
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		render.JSON(w, r, response.Error("file is too large"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		log.Error("missing file", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing file"))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	inputPath, err := h.service.SaveUpload(file, header)
	if err != nil {
		if errors.Is(err, media.ErrFileType) {
			log.Warn("unsupported file type", slog.String("filename", header.Filename))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("file type is not allowed"))
			return
		}
		log.Error("failed to save upload", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	animation, err := h.service.Generate(r.Context(), userUID, h.toolType, inputPath)
	if err != nil {
		if errors.Is(err, media.ErrGeneratorUnavailable) {
			log.Warn("generation backend unavailable")
			w.WriteHeader(http.StatusNotImplemented)
			render.JSON(w, r, response.Error("generation backend is not available"))
			return
		}
		log.Error("generation failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("content generated", slog.Int("animation_id", animation.ID))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"animation_id": animation.ID,
		"file_path":    animation.FilePath,
		"status":       animation.Status,
	}))
}
