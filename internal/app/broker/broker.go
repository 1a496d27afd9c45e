// Package broker собирает основной процесс: хранилище, кэш, очередь
// уведомлений, сервисы аренды и HTTP-сервер.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/credential-broker/internal/cache"
	"github.com/magabrotheeeer/credential-broker/internal/config"
	"github.com/magabrotheeeer/credential-broker/internal/lib/jwt"
	"github.com/magabrotheeeer/credential-broker/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credential-broker/internal/migrations"
	adminservice "github.com/magabrotheeeer/credential-broker/internal/services/admin"
	authservice "github.com/magabrotheeeer/credential-broker/internal/services/auth"
	conversationservice "github.com/magabrotheeeer/credential-broker/internal/services/conversation"
	leaseservice "github.com/magabrotheeeer/credential-broker/internal/services/lease"
	poolservice "github.com/magabrotheeeer/credential-broker/internal/services/pool"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// App представляет основной процесс брокера учётных данных.
type App struct {
	server    *http.Server
	scheduler *leaseservice.Scheduler
	db        *repository.Storage
	conn      *amqp.Connection
	ch        *amqp.Channel
	logger    *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения брокера.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		return nil, err
	}

	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	publisher := rabbitmq.NewPublisher(ch, rabbitmq.NotificationsExchange)

	poolService := poolservice.New(db, logger)
	scheduler := leaseservice.New(db, poolService, publisher, logger, cfg.SweepInterval)
	conversationService := conversationservice.New(db, poolService, cacheRedis, publisher,
		logger, cfg.PricePerDay, cfg.PaymentAccount, cfg.PaymentName, cfg.SessionTTL)
	adminService := adminservice.New(db, poolService, scheduler, publisher, logger)

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	authService := authservice.NewAuthService(cfg.OperatorUsername, cfg.OperatorPasswordHash, jwtMaker)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, jwtMaker, authService, conversationService, adminService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:    srv,
		scheduler: scheduler,
		db:        db,
		conn:      conn,
		ch:        ch,
		logger:    logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run восстанавливает отложенные возвраты, запускает периодическую
// зачистку и HTTP-сервер, затем ждёт остановки.
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.RecoverPending(ctx); err != nil {
		a.logger.Error("failed to recover pending reclaims", slog.Any("err", err))
	}
	go a.scheduler.RunSweep(ctx)

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
		closeResources(a.ch, a.conn, a.logger)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close storage", slog.Any("err", closeErr))
		}
		return err
	}
}
