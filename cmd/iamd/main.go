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

	"github.com/assetkart/iam/internal/app"
	"github.com/assetkart/iam/internal/authz"
	"github.com/assetkart/iam/internal/directory"
	"github.com/assetkart/iam/internal/observability"
	"github.com/assetkart/iam/internal/platform/cache"
	"github.com/assetkart/iam/internal/platform/db"
	"github.com/assetkart/iam/internal/shared"
	"github.com/assetkart/iam/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	authzCache, err := authz.NewCache(redisClient, cfg.AuthzCacheTTL, cfg.AuthzCacheLocalSize)
	if err != nil {
		logger.Error("init authz cache", slog.Any("error", err))
		os.Exit(1)
	}

	directoryRepo := directory.NewRepository(dbpool)
	directoryService := directory.NewService(directoryRepo, authzCache, auditLogger, logger)

	resolver := authz.NewResolver(directoryRepo)
	engine := authz.NewEngine(directoryRepo, authzCache, metrics, logger)
	gate := authz.Gate{Resolver: resolver, Engine: engine, Logger: logger}

	directoryHandler := directory.NewHandler(logger, directoryService, gate)
	authzHandler := authz.NewHandler(logger, resolver, engine, gate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger, gate)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DirectoryHandler: directoryHandler,
		AuthzHandler:     authzHandler,
		JobHandler:       jobHandler,
		Gate:             gate,
		Metrics:          metrics,
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
