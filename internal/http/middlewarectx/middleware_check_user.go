package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/firstmodai/firstmod-backend/internal/http/response"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/models"
)

// AccountStateProvider описывает чтение сохранённого состояния учётной записи.
type AccountStateProvider interface {
	GetAccountState(ctx context.Context, userUID string) (role, status string, err error)
}

// Sessions описывает инвалидацию кэша сессий.
type Sessions interface {
	Invalidate(userUID string) error
}

// AccountStatusMiddleware создает middleware, которое перечитывает
// сохранённое состояние учётной записи на каждом запросе. Блокировка
// действует немедленно, даже для уже выданных токенов; роль в контексте
// заменяется актуальной, так как она могла измениться после выдачи
// токена (оплата, действия администратора).
func AccountStatusMiddleware(log *slog.Logger, provider AccountStateProvider, sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userUID, ok := r.Context().Value(UserUID).(string)
			if !ok || userUID == "" {
				log.Error("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			role, status, err := provider.GetAccountState(r.Context(), userUID)
			if err != nil {
				log.Error("failed to get account state", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("account not found"))
				return
			}

			if status == models.StatusSuspended {
				if err := sessions.Invalidate(userUID); err != nil {
					log.Warn("failed to invalidate session cache", sl.Err(err))
				}
				log.Warn("suspended account denied", slog.String("user_uid", userUID))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("account is suspended"))
				return
			}

			ctx := context.WithValue(r.Context(), Role, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole создает middleware, пропускающее только пользователей
// с одной из перечисленных ролей.
func RequireRole(log *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value(Role).(string)
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}
			if _, ok := allowed[role]; !ok {
				log.Warn("access denied", slog.String("role", role))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
