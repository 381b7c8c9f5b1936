// Package userlist реализует HTTP-обработчик списка пользователей
// для панели администратора.
package userlist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/models"
)

// Handler обрабатывает HTTP-запросы списка пользователей.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики списка пользователей.
type Service interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// userView отображаемые поля пользователя без учётных данных.
type userView struct {
	UserUID             string  `json:"user_uid"`
	Email               string  `json:"email"`
	FullName            string  `json:"full_name"`
	Role                string  `json:"role"`
	SubscriptionStatus  string  `json:"subscription_status"`
	EmailVerified       bool    `json:"email_verified"`
	PlanType            *string `json:"plan_type,omitempty"`
	SubscriptionEndDate *string `json:"subscription_end_date,omitempty"`
}

// ServeHTTP godoc
// @Summary Список пользователей
// @Description Возвращает всех пользователей для панели администратора.
// @Tags Admin
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]any "Список пользователей"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.userlist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		view := userView{
			UserUID:            u.UID,
			Email:              u.Email,
			FullName:           u.FullName,
			Role:               u.Role,
			SubscriptionStatus: u.SubscriptionStatus,
			EmailVerified:      u.EmailVerified,
			PlanType:           u.PlanType,
		}
		if u.SubscriptionEndDate != nil {
			formatted := u.SubscriptionEndDate.Format("2006-01-02")
			view.SubscriptionEndDate = &formatted
		}
		views = append(views, view)
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"users": views,
		"count": len(views),
	}))
}
