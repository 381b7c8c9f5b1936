// Package userupdate реализует HTTP-обработчик редактирования
// пользователя администратором: смена имени и почты, блокировка
// и разблокировка учётной записи.
package userupdate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/models"
	"github.com/firstmodai/firstmod-backend/internal/services/auth"
)

// Request — входные данные редактирования пользователя. Статус
// применяется отдельно от полей профиля и может быть опущен.
type Request struct {
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Status   string `json:"status" validate:"omitempty,oneof=active suspended"`
}

// Handler обрабатывает HTTP-запросы редактирования пользователя.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс административных действий.
type Service interface {
	AdminEdit(ctx context.Context, targetUID, fullName, email string) error
	Suspend(ctx context.Context, targetUID string) error
	Activate(ctx context.Context, targetUID string) error
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
// @Summary Редактирование пользователя
// @Description Меняет имя, почту и статус учётной записи. Блокировка действует немедленно.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param id path string true "Идентификатор пользователя"
// @Param request body Request true "Новые данные пользователя"
// @Success 200 {object} response.Response "Пользователь обновлён"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 409 {object} response.ErrorResponse "Почта уже занята"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{id} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.userupdate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	targetUID := chi.URLParam(r, "id")
	if targetUID == "" {
		log.Error("missing user id")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing user id"))
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

	if err := h.service.AdminEdit(r.Context(), targetUID, req.FullName, req.Email); err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			log.Warn("email already taken", slog.String("email", req.Email))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("email already exists"))
		case errors.Is(err, auth.ErrUserNotFound):
			log.Warn("user not found", slog.String("user_uid", targetUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to update user", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	if req.Status != "" {
		var err error
		if req.Status == models.StatusSuspended {
			err = h.service.Suspend(r.Context(), targetUID)
		} else {
			err = h.service.Activate(r.Context(), targetUID)
		}
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				log.Warn("user not found", slog.String("user_uid", targetUID))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error("user not found"))
				return
			}
			log.Error("failed to update account status", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
			return
		}
	}

	log.Info("user updated", slog.String("user_uid", targetUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "user updated successfully",
	}))
}
