// Package dataset loads sales files into the relational store. Sources are
// CSV or Parquet files on local disk or in the object store.
package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/salesinsight/salesinsight/internal/storage"
)

const (
	defaultBatchSize = 1000
	// Keeps a batch below the PostgreSQL bind parameter limit.
	maxBatchSize = 65535 / 9
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

type Loader struct {
	DB        *sql.DB
	Objects   storage.ObjectStore
	Table     string
	BatchSize int
	Logger    *slog.Logger
}

type Result struct {
	Source   string        `json:"source"`
	Rows     int64         `json:"rows"`
	Batches  int           `json:"batches"`
	Skipped  bool          `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// LoadIfEmpty loads source only when the table has no rows yet.
func (l *Loader) LoadIfEmpty(ctx context.Context, source string) (Result, error) {
	count, err := l.Count(ctx)
	if err != nil {
		return Result{}, err
	}
	if count > 0 {
		l.logger().InfoContext(ctx, "sales table already populated, skipping dataset load",
			slog.String("table", l.table()),
			slog.Int64("existing_rows", count),
		)
		return Result{Source: source, Skipped: true}, nil
	}
	return l.Load(ctx, source)
}

func (l *Loader) Count(ctx context.Context) (int64, error) {
	table, err := l.validTable()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := l.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

// Load inserts every record of source in one transaction.
func (l *Loader) Load(ctx context.Context, source string) (Result, error) {
	return l.LoadAndRecord(ctx, source, nil)
}

// LoadAndRecord is Load with a hook that runs inside the load transaction
// after the last batch, so bookkeeping commits or rolls back with the rows.
func (l *Loader) LoadAndRecord(ctx context.Context, source string, record func(context.Context, *sql.Tx, Result) error) (Result, error) {
	table, err := l.validTable()
	if err != nil {
		return Result{}, err
	}
	location, err := storage.ParseLocation(source)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	records, closeSource, err := l.open(ctx, location)
	if err != nil {
		return Result{}, err
	}
	defer closeSource()

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin load tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result := Result{Source: location.String()}
	batchSize := l.batchSize()
	batch := make([]Sale, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := insertBatch(ctx, tx, table, batch); err != nil {
			return err
		}
		result.Rows += int64(len(batch))
		result.Batches++
		l.logger().DebugContext(ctx, "dataset batch inserted",
			slog.Int("batch", result.Batches),
			slog.Int64("rows", result.Rows),
		)
		batch = batch[:0]
		return nil
	}

	for {
		sale, err := records.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("load %s: %w", location, err)
		}
		batch = append(batch, sale)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return Result{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return Result{}, err
	}
	if record != nil {
		if err := record(ctx, tx, result); err != nil {
			return Result{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit load tx: %w", err)
	}

	result.Duration = time.Since(start)
	l.logger().InfoContext(ctx, "dataset loaded",
		slog.String("source", result.Source),
		slog.String("table", table),
		slog.Int64("rows", result.Rows),
		slog.Int("batches", result.Batches),
		slog.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (l *Loader) open(ctx context.Context, location storage.Location) (recordSource, func(), error) {
	if !location.Remote {
		file, err := os.Open(location.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open dataset %s: %w", location.Path, err)
		}
		records, err := newRecordSource(location.Format, file)
		if err != nil {
			_ = file.Close()
			return nil, nil, err
		}
		return records, closer(records, file), nil
	}

	if l.Objects == nil {
		return nil, nil, fmt.Errorf("dataset %s needs an object store", location)
	}
	if named, ok := l.Objects.(interface{ Bucket() string }); ok && location.Bucket != "" && location.Bucket != named.Bucket() {
		return nil, nil, fmt.Errorf("dataset bucket %q does not match configured bucket %q", location.Bucket, named.Bucket())
	}
	body, err := l.Objects.Get(ctx, location.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch dataset %s: %w", location, err)
	}
	if location.Format == storage.FormatCSV {
		records, err := newCSVSource(body)
		if err != nil {
			_ = body.Close()
			return nil, nil, err
		}
		return records, func() { _ = body.Close() }, nil
	}

	// Parquet needs random access, so remote files are spooled to disk.
	spool, err := os.CreateTemp("", "salesinsight-dataset-*.parquet")
	if err != nil {
		_ = body.Close()
		return nil, nil, fmt.Errorf("create dataset spool file: %w", err)
	}
	removeSpool := func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}
	_, err = io.Copy(spool, body)
	_ = body.Close()
	if err != nil {
		removeSpool()
		return nil, nil, fmt.Errorf("download dataset %s: %w", location, err)
	}
	records, err := newRecordSource(location.Format, spool)
	if err != nil {
		removeSpool()
		return nil, nil, err
	}
	return records, func() {
		closer(records, nil)()
		removeSpool()
	}, nil
}

func newRecordSource(format storage.Format, file *os.File) (recordSource, error) {
	if format == storage.FormatCSV {
		return newCSVSource(file)
	}
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat dataset file: %w", err)
	}
	return newParquetSource(file, info.Size())
}

func closer(records recordSource, file *os.File) func() {
	return func() {
		if c, ok := records.(io.Closer); ok {
			_ = c.Close()
		}
		if file != nil {
			_ = file.Close()
		}
	}
}

func insertBatch(ctx context.Context, tx *sql.Tx, table string, batch []Sale) error {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*len(columns))
	for i, sale := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(i*len(columns) + j + 1))
		}
		b.WriteString(")")
		args = append(args, sale.values()...)
	}

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(batch), table, err)
	}
	return nil
}

func (l *Loader) validTable() (string, error) {
	if l.DB == nil {
		return "", fmt.Errorf("database is required")
	}
	table := l.table()
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

func (l *Loader) table() string {
	if l.Table == "" {
		return "sales"
	}
	return l.Table
}

func (l *Loader) batchSize() int {
	switch {
	case l.BatchSize <= 0:
		return defaultBatchSize
	case l.BatchSize > maxBatchSize:
		return maxBatchSize
	default:
		return l.BatchSize
	}
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
