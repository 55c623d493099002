package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lawmakers-app/lawmakers-api/internal/app"
	"github.com/lawmakers-app/lawmakers-api/internal/auth"
	"github.com/lawmakers-app/lawmakers-api/internal/mail"
	"github.com/lawmakers-app/lawmakers-api/internal/observability"
	"github.com/lawmakers-app/lawmakers-api/internal/platform/cache"
	"github.com/lawmakers-app/lawmakers-api/internal/platform/db"
	"github.com/lawmakers-app/lawmakers-api/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var mailer mail.Mailer = mail.NewClient(cfg.ResendAPIKey, cfg.MailFrom, logger)
	if cfg.MailAsync {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		mailer = jobs.NewMailEnqueuer(asynqClient)
	}

	tokenService := auth.NewTokenService(redisClient, cfg.JWTSecret, logger)
	rateLimiter := auth.NewRateLimiter(redisClient, auth.DefaultRateLimits(), logger)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(auth.ServiceConfig{
		AppOrigin:     cfg.AppOrigin,
		DevAutoVerify: cfg.AuthDevAutoVerify,
	}, authRepo, tokenService, rateLimiter, mailer, logger)
	authMiddleware := auth.NewMiddleware(tokenService)

	metrics := observability.NewMetrics()

	authHandler := auth.NewHandler(auth.HandlerConfig{
		AppOrigin:     cfg.AppOrigin,
		SecureCookies: cfg.IsProduction(),
	}, logger, authService, authMiddleware, metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		AuthHandler: authHandler,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
