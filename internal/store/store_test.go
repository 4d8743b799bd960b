package store

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestOpenRequiresPostgresDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: DriverPostgres})
	if err == nil {
		t.Fatal("expected error for empty postgres DSN")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "sqlite"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenInMemoryDuckDB(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverDuckDB, MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := HealthCheck(ctx, db); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckReportsFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("connection reset"))
	if err := HealthCheck(context.Background(), db); err == nil {
		t.Fatal("expected health check error")
	}
	if err := HealthCheck(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}
