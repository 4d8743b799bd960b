package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open returns a pinged pool for the sales store. An empty DuckDB DSN opens
// an in-memory database shared by every connection of the pool.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driverName, err := sqlDriverName(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}

	return db, nil
}

func sqlDriverName(cfg Config) (string, error) {
	switch cfg.Driver {
	case "", DriverDuckDB:
		return "duckdb", nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return "", fmt.Errorf("postgres store dsn is required")
		}
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// HealthCheck runs SELECT 1 on a pooled connection.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("store is not configured")
	}
	var one int
	if err := db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	return nil
}
