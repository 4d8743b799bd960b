package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/salesinsight/salesinsight/internal/config"
	"github.com/salesinsight/salesinsight/internal/dataset"
	"github.com/salesinsight/salesinsight/internal/migrations"
	"github.com/salesinsight/salesinsight/internal/observability"
	"github.com/salesinsight/salesinsight/internal/storage"
	s3store "github.com/salesinsight/salesinsight/internal/storage/s3"
	"github.com/salesinsight/salesinsight/internal/store"
)

func main() {
	source := flag.String("source", "", "dataset file or s3://bucket/key; defaults to SALESINSIGHT_DATASET_SOURCE")
	upload := flag.Bool("upload", false, "upload a local source to the object store before loading")
	ifEmpty := flag.Bool("if-empty", true, "skip loading when the table already has rows")
	list := flag.Bool("list", false, "list dataset files in the object store and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv("salesinsight-load")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)
	if *source == "" {
		*source = cfg.Dataset.Source
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	var objects *s3store.Store
	openObjects := func() *s3store.Store {
		if objects != nil {
			return objects
		}
		objects, err = s3store.New(ctx, s3store.Config{
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
		return objects
	}

	if *list {
		infos, err := openObjects().List(ctx, "datasets")
		if err != nil {
			logger.Error("failed to list datasets", slog.Any("error", err))
			os.Exit(1)
		}
		for _, info := range infos {
			fmt.Printf("s3://%s/%s\t%d\n", objects.Bucket(), info.Key, info.Size)
		}
		return
	}

	location, err := storage.ParseLocation(*source)
	if err != nil {
		logger.Error("invalid dataset source", slog.Any("error", err))
		os.Exit(1)
	}
	if *upload && !location.Remote {
		remote, err := uploadDataset(ctx, openObjects(), cfg.Dataset.Table, location)
		if err != nil {
			logger.Error("failed to upload dataset", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("dataset uploaded", slog.String("source", location.Path), slog.String("location", remote))
		*source = remote
		location.Remote = true
	}

	db, err := store.Open(ctx, store.Config{
		Driver:       cfg.Store.Driver,
		DSN:          cfg.Store.DSN,
		MaxOpenConns: 1,
	})
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	loader := &dataset.Loader{
		DB:        db,
		Table:     cfg.Dataset.Table,
		BatchSize: cfg.Dataset.BatchSize,
		Logger:    logger,
	}
	if location.Remote {
		loader.Objects = openObjects()
	}

	var result dataset.Result
	if *ifEmpty {
		result, err = loader.LoadIfEmpty(ctx, *source)
	} else {
		result, err = loader.Load(ctx, *source)
	}
	if err != nil {
		logger.Error("dataset load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if result.Skipped {
		fmt.Printf("table %s already populated; nothing loaded\n", cfg.Dataset.Table)
		return
	}
	fmt.Printf("loaded %d row(s) from %s in %s\n", result.Rows, result.Source, result.Duration.Round(time.Millisecond))
}

func uploadDataset(ctx context.Context, objects *s3store.Store, table string, location storage.Location) (string, error) {
	key, err := storage.DatasetKey(table, filepath.Base(location.Path))
	if err != nil {
		return "", err
	}
	file, err := os.Open(location.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", location.Path, err)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", location.Path, err)
	}

	stored, err := objects.Put(ctx, key, file, info.Size(), storage.PutOptions{ContentType: storage.ContentType(location.Format)})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", objects.Bucket(), stored.Key), nil
}
