package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/firstmodai/firstmod-backend/internal/cache"
	"github.com/firstmodai/firstmod-backend/internal/config"
	"github.com/firstmodai/firstmod-backend/internal/lib/jwt"
	"github.com/firstmodai/firstmod-backend/internal/lib/verification"
	"github.com/firstmodai/firstmod-backend/internal/migrations"
	"github.com/firstmodai/firstmod-backend/internal/paymentprovider"
	"github.com/firstmodai/firstmod-backend/internal/rabbitmq"
	authservice "github.com/firstmodai/firstmod-backend/internal/services/auth"
	billingservice "github.com/firstmodai/firstmod-backend/internal/services/billing"
	mediaservice "github.com/firstmodai/firstmod-backend/internal/services/media"
	sessionservice "github.com/firstmodai/firstmod-backend/internal/services/session"
	"github.com/firstmodai/firstmod-backend/internal/storage/repository"
)

// App основное приложение: HTTP-сервер и его зависимости.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New собирает приложение: хранилище, миграции, кэш, брокер,
// сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	publisher := rabbitmq.NewPublisher(ch)

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	strategy := verification.New(cfg.VerificationMode)
	providerClient := paymentprovider.NewClient(cfg.PaymentProvider.APIURL, cfg.PaymentProvider.APIKey)

	sessionService := sessionservice.New(db, cacheRedis, logger)
	authService := authservice.New(db, db, sessionService, publisher, jwtMaker,
		strategy, cfg.FrontendBaseURL, logger)
	billingService := billingservice.New(db, db, providerClient, sessionService,
		publisher, cfg.PaymentProvider.WebhookSecret, cfg.FrontendBaseURL,
		cfg.PaymentProvider.PriceIDMonthly, cfg.PaymentProvider.PriceIDYearly, logger)
	mediaService := mediaservice.New(db, mediaservice.StubGenerator{}, cfg.UploadDir, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, db, jwtMaker, authService, billingService,
		mediaService, sessionService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.ch.Close(); closeErr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", closeErr))
		}
		if closeErr := a.conn.Close(); closeErr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		_ = a.db.DB.Close()
		return err
	}
}
