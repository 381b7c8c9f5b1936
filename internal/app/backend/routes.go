// Package backend собирает маршруты и зависимости основного приложения.
package backend

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/firstmodai/firstmod-backend/internal/http/handlers/admin/userlist"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/admin/userremove"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/admin/userupdate"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/auth/changepassword"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/auth/forgotpassword"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/auth/login"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/auth/logout"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/auth/resendcode"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/auth/signup"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/auth/verifyemail"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/auth/verifylink"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/billing/cancel"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/billing/checkoutcreate"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/billing/checkoutverify"
	billinghistory "github.com/firstmodai/firstmod-backend/internal/http/handlers/billing/history"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/billing/upgrade"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/billing/webhook"
	"github.com/firstmodai/firstmod-backend/internal/http/handlers/health"
	mediagenerate "github.com/firstmodai/firstmod-backend/internal/http/handlers/media/generate"
	medialist "github.com/firstmodai/firstmod-backend/internal/http/handlers/media/list"
	mediaremove "github.com/firstmodai/firstmod-backend/internal/http/handlers/media/remove"
	profileget "github.com/firstmodai/firstmod-backend/internal/http/handlers/profile/get"
	profilepicture "github.com/firstmodai/firstmod-backend/internal/http/handlers/profile/picture"
	profileupdate "github.com/firstmodai/firstmod-backend/internal/http/handlers/profile/update"
	"github.com/firstmodai/firstmod-backend/internal/http/middlewarectx"
	"github.com/firstmodai/firstmod-backend/internal/lib/jwt"
	"github.com/firstmodai/firstmod-backend/internal/models"
	authservice "github.com/firstmodai/firstmod-backend/internal/services/auth"
	billingservice "github.com/firstmodai/firstmod-backend/internal/services/billing"
	mediaservice "github.com/firstmodai/firstmod-backend/internal/services/media"
	sessionservice "github.com/firstmodai/firstmod-backend/internal/services/session"
	"github.com/firstmodai/firstmod-backend/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, db *repository.Storage,
	jwtMaker jwt.Maker, authService *authservice.Service,
	billingService *billingservice.Service, mediaService *mediaservice.Service,
	sessionService *sessionservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/signup", signup.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)
		r.Post("/verify-email", verifyemail.New(logger, authService).ServeHTTP)
		r.Get("/verify-link", verifylink.New(logger, authService).ServeHTTP)
		r.Post("/resend-code", resendcode.New(logger, authService).ServeHTTP)
		r.Post("/forgot-password", forgotpassword.New(logger, authService).ServeHTTP)

		// Вебхук провайдера: без JWT, доступ закрыт подписью тела
		r.Post("/stripe/webhook", webhook.New(logger, billingService).ServeHTTP)

		// Группа с JWT аутентификацией и проверкой статуса учётной записи
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.AccountStatusMiddleware(logger, db, sessionService))
			r.Use(middlewarectx.RateLimitMiddleware(logger))

			r.Post("/logout", logout.New(logger, authService).ServeHTTP)
			r.Post("/change-password", changepassword.New(logger, authService).ServeHTTP)
			r.Get("/profile", profileget.New(logger, sessionService).ServeHTTP)
			r.Put("/profile", profileupdate.New(logger, authService).ServeHTTP)
			r.Post("/profile/picture", profilepicture.New(logger, authService, mediaService).ServeHTTP)

			r.Post("/stripe/create-checkout-session", checkoutcreate.New(logger, billingService).ServeHTTP)
			r.Get("/stripe/verify-session/{id}", checkoutverify.New(logger, billingService).ServeHTTP)
			r.Post("/stripe/cancel-subscription", cancel.New(logger, billingService).ServeHTTP)
			r.Post("/subscription/update", upgrade.New(logger, billingService).ServeHTTP)
			r.Get("/billing/history", billinghistory.New(logger, billingService).ServeHTTP)

			// Контент доступен подписчикам и администраторам
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, models.RoleSubscriber, models.RoleAdmin))
				r.Post("/media/animate", mediagenerate.New(logger, mediaService, models.ToolTalkingHead).ServeHTTP)
				r.Post("/media/faceswap", mediagenerate.New(logger, mediaService, models.ToolFaceSwap).ServeHTTP)
				r.Get("/media/list", medialist.New(logger, mediaService).ServeHTTP)
				r.Delete("/media/{id}", mediaremove.New(logger, mediaService).ServeHTTP)
			})

			// Панель администратора
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, models.RoleAdmin))
				r.Get("/admin/users", userlist.New(logger, authService).ServeHTTP)
				r.Put("/admin/users/{id}", userupdate.New(logger, authService).ServeHTTP)
				r.Delete("/admin/users/{id}", userremove.New(logger, authService).ServeHTTP)
			})
		})

		r.Get("/health", health.New(logger).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
