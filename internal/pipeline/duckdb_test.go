package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/salesinsight/salesinsight/internal/migrations"
	"github.com/salesinsight/salesinsight/internal/query/sqlengine"
	"github.com/salesinsight/salesinsight/internal/store"
)

func TestAskRunsLiteralFilterAgainstDuckDB(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{Driver: store.DriverDuckDB, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO sales (date, week_day, hour, ticket_number, waiter, product_name, quantity, unitary_price, total) VALUES
		('2024-01-01', 'Monday', '09:15', 'T1', 1, 'coffee', 2, 1.5, 3.0),
		('2024-01-01', 'Monday', '09:20', 'T2', 1, 'coffee', 1, 1.5, 1.5),
		('2024-01-01', 'Monday', '09:20', 'T2', 1, 'tea', 4, 1.0, 4.0)`); err != nil {
		t.Fatalf("seed sales: %v", err)
	}

	translator := &fakeTranslator{sql: "SELECT SUM(quantity) AS sold FROM sales WHERE product_name = 'coffee'"}
	p := New(fakeSchema{}, translator, sqlengine.NewEngine(db, 5*time.Second, nil), newTestCache(t), Options{})

	response, err := p.Ask(ctx, "How many coffees did we sell?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if response.SQL != translator.sql {
		t.Fatalf("sql = %q, want %q", response.SQL, translator.sql)
	}
	if len(response.Data.Rows) != 1 || response.Data.Rows[0][0] != 3.0 {
		t.Fatalf("rows = %#v", response.Data.Rows)
	}
	if response.Data.Columns[0] != "sold" {
		t.Fatalf("columns = %v", response.Data.Columns)
	}
}
