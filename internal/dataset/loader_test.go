package dataset

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/parquet-go/parquet-go"

	"github.com/salesinsight/salesinsight/internal/migrations"
	"github.com/salesinsight/salesinsight/internal/storage"
	"github.com/salesinsight/salesinsight/internal/store"
)

const salesCSV = `date,week_day,hour,ticket_number,waiter,product_name,quantity,unitary_price,total
2024-01-01,Monday,09:15,T1,1,Coffee,2,1.5,3.0
2024-01-01,Monday,09:15,T1,1,Croissant,1,2.25,2.25
2024-01-02,Tuesday,13:40,T2,2,Coffee,1,1.5,1.5
`

func TestLoadCSVIntoDuckDB(t *testing.T) {
	db := newSalesDB(t)
	path := writeFile(t, "sales.csv", []byte(salesCSV))

	loader := &Loader{DB: db, BatchSize: 2}
	result, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.Rows != 3 || result.Batches != 2 || result.Skipped {
		t.Fatalf("result = %+v", result)
	}

	var revenue float64
	var tickets int64
	if err := db.QueryRow(`SELECT SUM(total), COUNT(DISTINCT ticket_number) FROM sales`).Scan(&revenue, &tickets); err != nil {
		t.Fatalf("query loaded rows: %v", err)
	}
	if revenue != 6.75 || tickets != 2 {
		t.Fatalf("revenue/tickets = %v/%d", revenue, tickets)
	}
}

func TestLoadIfEmptySkipsPopulatedTable(t *testing.T) {
	db := newSalesDB(t)
	path := writeFile(t, "sales.csv", []byte(salesCSV))
	loader := &Loader{DB: db}
	ctx := context.Background()

	first, err := loader.LoadIfEmpty(ctx, path)
	if err != nil || first.Skipped || first.Rows != 3 {
		t.Fatalf("first LoadIfEmpty() = %+v, %v", first, err)
	}
	second, err := loader.LoadIfEmpty(ctx, path)
	if err != nil || !second.Skipped {
		t.Fatalf("second LoadIfEmpty() = %+v, %v", second, err)
	}
	if count, _ := loader.Count(ctx); count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestLoadRollsBackOnInvalidRow(t *testing.T) {
	db := newSalesDB(t)
	body := salesCSV + "2024-01-03,Wednesday,10:00,T3,not-a-number,Tea,1,1,1\n"
	path := writeFile(t, "sales.csv", []byte(body))
	loader := &Loader{DB: db, BatchSize: 1}

	_, err := loader.Load(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "line 5: invalid waiter") {
		t.Fatalf("Load() error = %v", err)
	}
	if count, _ := loader.Count(context.Background()); count != 0 {
		t.Fatalf("count = %d after failed load, want 0", count)
	}
}

func TestLoadRejectsCSVWithoutRequiredColumns(t *testing.T) {
	db := newSalesDB(t)
	path := writeFile(t, "sales.csv", []byte("date,total\n2024-01-01,3\n"))

	_, err := (&Loader{DB: db}).Load(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "missing columns") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadParquetFromObjectStore(t *testing.T) {
	db := newSalesDB(t)
	sales := []Sale{
		{Date: "2024-02-01", WeekDay: "Thursday", Hour: "08:00", TicketNumber: "P1", Waiter: 3, ProductName: "Tea", Quantity: 2, UnitaryPrice: 1.25, Total: 2.5},
		{Date: "2024-02-01", WeekDay: "Thursday", Hour: "08:05", TicketNumber: "P2", Waiter: 3, ProductName: "Cake", Quantity: 1, UnitaryPrice: 3, Total: 3},
	}
	objects := &memoryObjects{bucket: "datasets", objects: map[string][]byte{
		"datasets/sales/feb.parquet": encodeParquet(t, sales),
	}}

	loader := &Loader{DB: db, Objects: objects}
	result, err := loader.Load(context.Background(), "s3://datasets/datasets/sales/feb.parquet")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.Rows != 2 || result.Source != "s3://datasets/datasets/sales/feb.parquet" {
		t.Fatalf("result = %+v", result)
	}

	var product string
	var waiter int64
	if err := db.QueryRow(`SELECT product_name, waiter FROM sales WHERE ticket_number = 'P2'`).Scan(&product, &waiter); err != nil {
		t.Fatalf("query loaded row: %v", err)
	}
	if product != "Cake" || waiter != 3 {
		t.Fatalf("row = %s/%d", product, waiter)
	}
}

func TestLoadRejectsParquetWithoutRequiredColumns(t *testing.T) {
	type partial struct {
		Date  string  `parquet:"date"`
		Total float64 `parquet:"total"`
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[partial](buf)
	if _, err := writer.Write([]partial{{Date: "2024-01-01", Total: 1}}); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	path := writeFile(t, "partial.parquet", buf.Bytes())

	_, err := (&Loader{DB: newSalesDB(t)}).Load(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "missing columns") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadRejectsForeignBucket(t *testing.T) {
	objects := &memoryObjects{bucket: "datasets", objects: map[string][]byte{}}
	_, err := (&Loader{DB: newSalesDB(t), Objects: objects}).Load(context.Background(), "s3://other/sales.csv")
	if err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadInsertsInBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	path := writeFile(t, "sales.csv", []byte(salesCSV))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sales \(date, week_day, hour, ticket_number, waiter, product_name, quantity, unitary_price, total\) VALUES \(\$1, .*\), \(\$10, .*\$18\)$`).
		WithArgs(args(
			Sale{Date: "2024-01-01", WeekDay: "Monday", Hour: "09:15", TicketNumber: "T1", Waiter: 1, ProductName: "Coffee", Quantity: 2, UnitaryPrice: 1.5, Total: 3},
			Sale{Date: "2024-01-01", WeekDay: "Monday", Hour: "09:15", TicketNumber: "T1", Waiter: 1, ProductName: "Croissant", Quantity: 1, UnitaryPrice: 2.25, Total: 2.25},
		)...).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO sales .* VALUES \(\$1, .*\$9\)$`).
		WithArgs(args(
			Sale{Date: "2024-01-02", WeekDay: "Tuesday", Hour: "13:40", TicketNumber: "T2", Waiter: 2, ProductName: "Coffee", Quantity: 1, UnitaryPrice: 1.5, Total: 1.5},
		)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := (&Loader{DB: db, BatchSize: 2}).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.Batches != 2 {
		t.Fatalf("batches = %d", result.Batches)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations were not met: %v", err)
	}
}

func TestLoaderRejectsInvalidTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := (&Loader{DB: db, Table: "sales; DROP TABLE x"}).Count(context.Background()); err == nil {
		t.Fatal("expected invalid table name error")
	}
}

func args(sales ...Sale) []driver.Value {
	var values []driver.Value
	for _, sale := range sales {
		for _, value := range sale.values() {
			values = append(values, value)
		}
	}
	return values
}

func newSalesDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{Driver: store.DriverDuckDB, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func writeFile(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func encodeParquet(t *testing.T, sales []Sale) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Sale](buf)
	if _, err := writer.Write(sales); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	return buf.Bytes()
}

type memoryObjects struct {
	bucket  string
	objects map[string][]byte
}

func (m *memoryObjects) Bucket() string { return m.bucket }

func (m *memoryObjects) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryObjects) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return objects, nil
}
