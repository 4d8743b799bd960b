// Package producer generates a synthetic sales dataset for local runs.
package producer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/salesinsight/salesinsight/internal/dataset"
	"github.com/salesinsight/salesinsight/internal/storage"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	objects   storage.ObjectStore
	generator *Generator
}

type Summary struct {
	Output   string
	Location string
	Days     int
	Rows     int
}

// NewService builds a producer. objects may be nil when Upload is false.
func NewService(cfg Config, logger *slog.Logger, objects storage.ObjectStore) (*Service, error) {
	if cfg.Upload && objects == nil {
		return nil, fmt.Errorf("object store is required for upload")
	}
	if cfg.Days <= 0 || cfg.TicketsPerDay <= 0 {
		return nil, fmt.Errorf("days and tickets per day must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:       cfg,
		log:       logger,
		objects:   objects,
		generator: NewGenerator(cfg.Seed, cfg.Waiters),
	}, nil
}

// Generate returns every sale for the configured date range.
func (s *Service) Generate() []dataset.Sale {
	var sales []dataset.Sale
	for day := 0; day < s.cfg.Days; day++ {
		sales = append(sales, s.generator.Day(s.cfg.StartDate.AddDate(0, 0, day), s.cfg.TicketsPerDay)...)
	}
	return sales
}

// Run writes the dataset to the output file and optionally uploads it.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	sales := s.Generate()
	buf := bytes.NewBuffer(nil)
	if err := dataset.Write(buf, s.cfg.Format, sales); err != nil {
		return Summary{}, err
	}
	if err := os.WriteFile(s.cfg.Output, buf.Bytes(), 0o644); err != nil {
		return Summary{}, fmt.Errorf("write %s: %w", s.cfg.Output, err)
	}
	summary := Summary{Output: s.cfg.Output, Days: s.cfg.Days, Rows: len(sales)}
	s.log.Info("demo dataset written",
		slog.String("output", s.cfg.Output),
		slog.String("format", string(s.cfg.Format)),
		slog.Int("rows", len(sales)),
	)

	if !s.cfg.Upload {
		return summary, nil
	}
	key, err := storage.DatasetKey(s.cfg.Table, filepath.Base(s.cfg.Output))
	if err != nil {
		return Summary{}, err
	}
	info, err := s.objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.PutOptions{
		ContentType: storage.ContentType(s.cfg.Format),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("upload demo dataset: %w", err)
	}
	summary.Location = "s3:///" + info.Key
	if named, ok := s.objects.(interface{ Bucket() string }); ok {
		summary.Location = fmt.Sprintf("s3://%s/%s", named.Bucket(), info.Key)
	}
	s.log.Info("demo dataset uploaded", slog.String("location", summary.Location))
	return summary, nil
}
