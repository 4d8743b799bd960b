package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/salesinsight/salesinsight/internal/config"
	"github.com/salesinsight/salesinsight/internal/coordinator"
	"github.com/salesinsight/salesinsight/internal/dataset"
	"github.com/salesinsight/salesinsight/internal/migrations"
	"github.com/salesinsight/salesinsight/internal/observability"
	s3store "github.com/salesinsight/salesinsight/internal/storage/s3"
	"github.com/salesinsight/salesinsight/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("salesinsight-coordinator")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := store.Open(context.Background(), store.Config{
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

	if _, err := migrations.NewRunner().Up(context.Background(), db, 0); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	objects, err := s3store.New(context.Background(), s3store.Config{
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
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	svc := &coordinator.Service{
		Loader: &dataset.Loader{
			DB:        db,
			Objects:   objects,
			Table:     cfg.Dataset.Table,
			BatchSize: cfg.Dataset.BatchSize,
			Logger:    logger,
		},
		Objects: objects,
		Config:  coordinator.Config{PollInterval: cfg.Dataset.WatchInterval},
		Logger:  logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("dataset coordinator started",
		slog.String("bucket", objects.Bucket()),
		slog.String("table", cfg.Dataset.Table),
		slog.Duration("poll_interval", cfg.Dataset.WatchInterval),
	)
	if err := svc.Run(ctx); err != nil {
		logger.Error("dataset coordinator failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("dataset coordinator stopped")
}
