package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/salesinsight/salesinsight/internal/config"
	"github.com/salesinsight/salesinsight/internal/demo/producer"
	"github.com/salesinsight/salesinsight/internal/storage"
	s3store "github.com/salesinsight/salesinsight/internal/storage/s3"
)

func main() {
	cfg, err := producer.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo data config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var objects storage.ObjectStore
	if cfg.Upload {
		appCfg, err := config.LoadFromEnv("salesinsight-demo-data")
		if err != nil {
			logger.Error("failed to load object store config", slog.Any("error", err))
			os.Exit(1)
		}
		objects, err = s3store.New(ctx, s3store.Config{
			Endpoint:         appCfg.ObjectStore.Endpoint,
			Region:           appCfg.ObjectStore.Region,
			Bucket:           appCfg.ObjectStore.Bucket,
			AccessKeyID:      appCfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  appCfg.ObjectStore.SecretAccessKey,
			UseSSL:           appCfg.ObjectStore.UseSSL,
			Prefix:           appCfg.ObjectStore.Prefix,
			AutoCreateBucket: appCfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	service, err := producer.NewService(cfg, logger, objects)
	if err != nil {
		logger.Error("failed to initialize demo data producer", slog.Any("error", err))
		os.Exit(1)
	}

	summary, err := service.Run(ctx)
	if err != nil {
		logger.Error("demo data generation failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("wrote %d sale line(s) over %d day(s) to %s\n", summary.Rows, summary.Days, summary.Output)
	if summary.Location != "" {
		fmt.Printf("uploaded to %s\n", summary.Location)
	}
}
