// Package picture реализует HTTP-обработчик загрузки фотографии профиля.
// Файл сохраняется тем же механизмом, что и загрузки для генерации,
// путь к нему привязывается к учётной записи.
package picture

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/middlewarectx"
	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/services/media"
)

// Фотография профиля может быть только изображением, аудио и видео
// из общего списка загрузок здесь не принимаются.
var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
}

// Handler обрабатывает HTTP-запросы загрузки фотографии профиля.
type Handler struct {
	log     *slog.Logger
	service Service
	uploads Uploads
}

// Service описывает интерфейс привязки фотографии к учётной записи.
type Service interface {
	SetPicture(ctx context.Context, userUID, picturePath string) error
}

// Uploads описывает интерфейс сохранения загруженного файла.
type Uploads interface {
	SaveUpload(file multipart.File, header *multipart.FileHeader) (string, error)
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, uploads Uploads) *Handler {
	return &Handler{
		log:     log,
		service: service,
		uploads: uploads,
	}
}

// ServeHTTP godoc
// @Summary Загрузка фотографии профиля
// @Description Принимает изображение, сохраняет его и привязывает к профилю. Прежняя фотография заменяется.
// @Tags Profile
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param file formData file true "Файл изображения"
// @Success 200 {object} map[string]any "Путь к сохранённой фотографии"
// @Failure 400 {object} response.ErrorResponse "Файл отсутствует или не является изображением"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 413 {object} response.ErrorResponse "Файл слишком большой"
// @Router /profile/picture [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.profile.picture"

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

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := imageExtensions[ext]; !ok {
		log.Warn("profile picture is not an image", slog.String("filename", header.Filename))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("profile picture must be an image"))
		return
	}

	picturePath, err := h.uploads.SaveUpload(file, header)
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

	if err := h.service.SetPicture(r.Context(), userUID, picturePath); err != nil {
		log.Error("failed to set profile picture", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("profile picture updated", slog.String("user_uid", userUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"picture_path": picturePath,
	}))
}
