package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medicore/hospital-api/internal/config"
	"github.com/medicore/hospital-api/internal/email"
	appointmenthandler "github.com/medicore/hospital-api/internal/handler/appointment"
	authhandler "github.com/medicore/hospital-api/internal/handler/auth"
	billinghandler "github.com/medicore/hospital-api/internal/handler/billing"
	"github.com/medicore/hospital-api/internal/middleware"
	"github.com/medicore/hospital-api/internal/repository/postgres"
	"github.com/medicore/hospital-api/internal/router"
	appointmentservice "github.com/medicore/hospital-api/internal/service/appointment"
	authservice "github.com/medicore/hospital-api/internal/service/auth"
	billingservice "github.com/medicore/hospital-api/internal/service/billing"
	"github.com/medicore/hospital-api/pkg/auth"
	"github.com/medicore/hospital-api/pkg/logger"
	"github.com/medicore/hospital-api/pkg/messaging/redis"
	"github.com/medicore/hospital-api/pkg/metrics"
	"github.com/medicore/hospital-api/pkg/security"
	"github.com/medicore/hospital-api/pkg/worker"
)

func main() {
	l := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		l.Fatal(err, "failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	billingRepo := postgres.NewBillingRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	userRepo := postgres.NewUserRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	m := metrics.NewMetrics("hospital", "billing")

	var notifier email.Service
	if cfg.SMTP.Enabled {
		notifier = email.NewService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, l)
	}

	tokens := auth.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMW := middleware.NewAuthMiddleware(tokens)
	hasher := security.NewBcryptHasher(0)

	billingSvc := billingservice.NewService(billingRepo, appointmentRepo, userRepo, outboxRepo, notifier, m, l)
	authSvc := authservice.NewService(userRepo, hasher, tokens)
	appointmentSvc := appointmentservice.NewService(appointmentRepo, userRepo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Redis.Enabled {
		broker, err := redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   3,
			RetryBackoff: 100 * time.Millisecond,
			PoolSize:     10,
			MinIdleConns: 2,
		}, l.Zerolog())
		if err != nil {
			l.Fatal(err, "failed to connect to redis")
		}
		defer broker.Close()

		processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  time.Duration(cfg.Outbox.PollIntervalSeconds) * time.Second,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		}, l, m)
		go processor.Start(ctx)
	} else {
		l.Warn("redis disabled, billing events stay queued in the outbox")
	}

	engine := router.New(router.Options{
		Logger:      l,
		DB:          db,
		Auth:        authhandler.NewHandler(authSvc),
		Billing:     billinghandler.NewHandler(billingSvc, authMW),
		Appointment: appointmenthandler.NewHandler(appointmentSvc, authMW),
		RateLimit:   middleware.NewRateLimiter(50, 100),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		l.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal(err, "server failed")
		}
	}()

	<-ctx.Done()
	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "graceful shutdown failed")
		os.Exit(1)
	}
}
