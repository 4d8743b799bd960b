// Package coordinator watches the object store for new sales files and loads
// each one into the relational store exactly once.
package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/salesinsight/salesinsight/internal/dataset"
	"github.com/salesinsight/salesinsight/internal/storage"
)

type Service struct {
	Loader  *dataset.Loader
	Objects storage.ObjectStore
	Config  Config
	Logger  *slog.Logger
}

type Config struct {
	PollInterval time.Duration
}

type CycleResult struct {
	Discovered int
	Loaded     int
	Failed     int
	Rows       int64
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.ProcessOnce(ctx); err != nil {
			s.Logger.ErrorContext(ctx, "dataset watch cycle failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce loads every pending file under datasets/<table>/ in key order.
// A file that fails to load is left pending and retried on the next cycle.
func (s *Service) ProcessOnce(ctx context.Context) (CycleResult, error) {
	s.ensureDefaults()
	if s.Loader == nil || s.Loader.DB == nil || s.Objects == nil {
		return CycleResult{}, fmt.Errorf("loader, database and object store are required")
	}

	table := s.Loader.Table
	if table == "" {
		table = "sales"
	}
	listed, err := s.Objects.List(ctx, path.Join("datasets", table))
	if err != nil {
		return CycleResult{}, fmt.Errorf("list datasets: %w", err)
	}
	loaded, err := loadedObjects(ctx, s.Loader.DB)
	if err != nil {
		return CycleResult{}, err
	}

	pending := s.pendingObjects(ctx, listed, loaded)
	pendingFiles.Set(float64(len(pending)))

	result := CycleResult{Discovered: len(pending)}
	for _, object := range pending {
		loadResult, err := s.Loader.LoadAndRecord(ctx, "s3:///"+object.Key, func(ctx context.Context, tx *sql.Tx, loadResult dataset.Result) error {
			return recordLoad(ctx, tx, object, loadResult.Rows)
		})
		if err != nil {
			result.Failed++
			filesTotal.WithLabelValues("failed").Inc()
			s.Logger.ErrorContext(ctx, "dataset file load failed",
				slog.String("object_key", object.Key),
				slog.Any("error", err),
			)
			continue
		}
		result.Loaded++
		result.Rows += loadResult.Rows
		filesTotal.WithLabelValues("loaded").Inc()
		rowsLoadedTotal.Add(float64(loadResult.Rows))
		pendingFiles.Dec()
	}

	if result.Discovered > 0 {
		s.Logger.InfoContext(ctx, "dataset watch cycle completed",
			slog.String("table", table),
			slog.Int("discovered", result.Discovered),
			slog.Int("loaded", result.Loaded),
			slog.Int("failed", result.Failed),
			slog.Int64("rows", result.Rows),
		)
	}
	return result, nil
}

func (s *Service) pendingObjects(ctx context.Context, listed []storage.ObjectInfo, loaded map[string]string) []storage.ObjectInfo {
	pending := make([]storage.ObjectInfo, 0, len(listed))
	for _, object := range listed {
		if _, err := storage.DetectFormat(object.Key); err != nil {
			continue
		}
		etag, seen := loaded[object.Key]
		if !seen {
			pending = append(pending, object)
			continue
		}
		if etag != "" && object.ETag != "" && etag != object.ETag {
			s.Logger.WarnContext(ctx, "dataset file changed after it was loaded; upload it under a new key to load it",
				slog.String("object_key", object.Key),
			)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Key < pending[j].Key })
	return pending
}

func (s *Service) ensureDefaults() {
	if s.Config.PollInterval <= 0 {
		s.Config.PollInterval = 30 * time.Second
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
}
