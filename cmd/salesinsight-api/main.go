package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salesinsight/salesinsight/internal/api"
	"github.com/salesinsight/salesinsight/internal/auth"
	"github.com/salesinsight/salesinsight/internal/cache"
	"github.com/salesinsight/salesinsight/internal/config"
	"github.com/salesinsight/salesinsight/internal/dataset"
	"github.com/salesinsight/salesinsight/internal/migrations"
	"github.com/salesinsight/salesinsight/internal/nl2sql"
	"github.com/salesinsight/salesinsight/internal/observability"
	"github.com/salesinsight/salesinsight/internal/pipeline"
	"github.com/salesinsight/salesinsight/internal/query/sqlengine"
	"github.com/salesinsight/salesinsight/internal/schema"
	"github.com/salesinsight/salesinsight/internal/storage"
	s3store "github.com/salesinsight/salesinsight/internal/storage/s3"
	"github.com/salesinsight/salesinsight/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("salesinsight-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancelStartup()

	db, err := store.Open(startupCtx, store.Config{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	applied, err := migrations.NewRunner().Up(startupCtx, db, 0)
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("store ready", slog.String("driver", cfg.Store.Driver), slog.Int("migrations_applied", applied))

	if cfg.Dataset.LoadOnStart {
		if err := loadDataset(startupCtx, cfg, db, logger); err != nil {
			logger.Error("failed to load dataset", slog.Any("error", err))
			os.Exit(1)
		}
	}

	responseCache, err := cache.Open(startupCtx, cfg.Cache, logger)
	if err != nil {
		logger.Error("failed to open cache", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = responseCache.Close() }()

	translator, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.Any("error", err))
		os.Exit(1)
	}

	analyst := pipeline.New(
		schema.NewDescriber(db, logger, cfg.Dataset.Table),
		nl2sql.NewRateLimitedTranslator(translator, cfg.AI.RequestsPerMinute),
		sqlengine.NewEngine(db, cfg.Query.Timeout, logger),
		responseCache,
		pipeline.Options{
			MaxRows:        cfg.Query.MaxRows,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			StatsTable:     cfg.Dataset.Table,
			SingleFlight:   cfg.Cache.SingleFlight,
			Logger:         logger,
		},
	)

	deps := api.Dependencies{
		Logger:  logger,
		Analyst: analyst,
		Readiness: api.CombineReadinessChecks(
			func(ctx context.Context) error { return store.HealthCheck(ctx, db) },
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func loadDataset(ctx context.Context, cfg config.Config, db *sql.DB, logger *slog.Logger) error {
	location, err := storage.ParseLocation(cfg.Dataset.Source)
	if err != nil {
		return err
	}
	loader := &dataset.Loader{
		DB:        db,
		Table:     cfg.Dataset.Table,
		BatchSize: cfg.Dataset.BatchSize,
		Logger:    logger,
	}
	if location.Remote {
		objects, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return err
		}
		loader.Objects = objects
	}
	_, err = loader.LoadIfEmpty(ctx, cfg.Dataset.Source)
	return err
}
