package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/salesinsight/salesinsight/internal/cache"
	"github.com/salesinsight/salesinsight/internal/chart"
	"github.com/salesinsight/salesinsight/internal/nl2sql"
	"github.com/salesinsight/salesinsight/internal/query"
	"github.com/salesinsight/salesinsight/internal/schema"
)

const topProductsSQL = "SELECT product_name, SUM(quantity) AS total_sold FROM sales GROUP BY product_name ORDER BY total_sold DESC LIMIT 5"

type fakeSchema struct{}

func (fakeSchema) Describe(context.Context) (schema.Description, error) {
	tables := []schema.Table{schema.SalesTable}
	return schema.Description{Tables: tables, Text: schema.Render(tables)}, nil
}

type fakeTranslator struct {
	sql     string
	err     error
	block   bool
	release chan struct{}
	calls   atomic.Int32
	lastReq nl2sql.Request
	mu      sync.Mutex
}

func (f *fakeTranslator) Translate(ctx context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nl2sql.Result{}, &nl2sql.GenerationError{Reason: "language model request timed out", Err: ctx.Err()}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{SQL: f.sql, Provider: "fake", Model: "fake-1"}, nil
}

type fakeEngine struct {
	result   query.Result
	err      error
	calls    atomic.Int32
	requests []query.Request
	mu       sync.Mutex
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()
	if f.err != nil {
		return query.Result{}, f.err
	}
	return f.result, nil
}

func topProductsResult() query.Result {
	return query.Result{
		Columns: []string{"product_name", "total_sold"},
		Rows: [][]any{
			{"Coffee", 120.0},
			{"Tea", int64(80)},
			{"Cake", 60.5},
			{"Juice", 40.0},
			{"Water", nil},
		},
		Duration: time.Millisecond,
	}
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	memory, err := cache.NewMemory(100)
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	return cache.New(memory, map[cache.Class]time.Duration{cache.ClassQuery: time.Minute, cache.ClassStats: time.Minute}, nil)
}

func TestAskTopProductsSuggestsBarChart(t *testing.T) {
	translator := &fakeTranslator{sql: topProductsSQL + ";"}
	engine := &fakeEngine{result: topProductsResult()}
	p := New(fakeSchema{}, translator, engine, newTestCache(t), Options{MaxRows: 50})

	response, err := p.Ask(context.Background(), "What are the top 5 best-selling products?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if response.SQL != topProductsSQL {
		t.Fatalf("SQL = %q", response.SQL)
	}
	if response.ChartSuggestion.ChartType != chart.TypeBar {
		t.Fatalf("chart type = %q, want bar", response.ChartSuggestion.ChartType)
	}
	if response.RowCount != 5 || len(response.Data.Rows) != 5 || response.Cached || response.Truncated {
		t.Fatalf("response = %#v", response)
	}
	if engine.requests[0].MaxRows != 50 || engine.requests[0].SQL != topProductsSQL {
		t.Fatalf("engine request = %#v", engine.requests[0])
	}
	if !strings.Contains(translator.lastReq.Schema, "Table sales:") {
		t.Fatalf("schema not passed to translator: %q", translator.lastReq.Schema)
	}
}

func TestAskMonthlyTrendSuggestsLineChart(t *testing.T) {
	translator := &fakeTranslator{sql: "SELECT strftime(CAST(date AS DATE), '%Y-%m') AS month, SUM(total) AS revenue FROM sales GROUP BY month ORDER BY month"}
	engine := &fakeEngine{result: query.Result{
		Columns: []string{"month", "revenue"},
		Rows:    [][]any{{"2024-01", 10.0}, {"2024-02", 12.0}, {"2024-03", 9.0}},
	}}
	p := New(fakeSchema{}, translator, engine, nil, Options{})

	response, err := p.Ask(context.Background(), "Show sales trend by month")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if response.ChartSuggestion.ChartType != chart.TypeLine {
		t.Fatalf("chart type = %q, want line", response.ChartSuggestion.ChartType)
	}
}

func TestAskRejectsDropTableWithoutExecuting(t *testing.T) {
	c := newTestCache(t)
	translator := &fakeTranslator{sql: "DROP TABLE sales"}
	engine := &fakeEngine{result: topProductsResult()}
	p := New(fakeSchema{}, translator, engine, c, Options{})

	question := "please remove everything"
	_, err := p.Ask(context.Background(), question)
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) || pipelineErr.Kind != KindUnsafeQuery {
		t.Fatalf("Ask() error = %v, want unsafe_query", err)
	}
	if pipelineErr.Retryable() {
		t.Fatal("unsafe query reported as retryable")
	}
	if engine.calls.Load() != 0 {
		t.Fatalf("engine called %d times for unsafe statement", engine.calls.Load())
	}
	if c.Contains(context.Background(), cache.Key(cache.ClassQuery, question)) {
		t.Fatal("unsafe statement response was cached")
	}
}

func TestAskGenerationTimeoutIsNotCached(t *testing.T) {
	c := newTestCache(t)
	translator := &fakeTranslator{block: true}
	engine := &fakeEngine{}
	p := New(fakeSchema{}, translator, engine, c, Options{RequestTimeout: 20 * time.Millisecond})

	question := "What are the top 5 best-selling products?"
	_, err := p.Ask(context.Background(), question)
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) || pipelineErr.Kind != KindGeneration {
		t.Fatalf("Ask() error = %v, want generation_error", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cause = %v, want deadline exceeded", errors.Unwrap(err))
	}
	if engine.calls.Load() != 0 {
		t.Fatal("engine called after generation failure")
	}
	if c.Contains(context.Background(), cache.Key(cache.ClassQuery, question)) {
		t.Fatal("failed generation was cached")
	}
}

func TestAskExecutionErrorIsRetryableAndHidden(t *testing.T) {
	c := newTestCache(t)
	translator := &fakeTranslator{sql: "SELECT nope FROM sales"}
	engine := &fakeEngine{err: &query.ExecutionError{Err: errors.New(`column "nope" does not exist`)}}
	p := New(fakeSchema{}, translator, engine, c, Options{})

	for i := 0; i < 2; i++ {
		_, err := p.Ask(context.Background(), "show nope")
		var pipelineErr *Error
		if !errors.As(err, &pipelineErr) || pipelineErr.Kind != KindExecution {
			t.Fatalf("Ask() error = %v, want execution_error", err)
		}
		if !pipelineErr.Retryable() {
			t.Fatal("execution error should be retryable")
		}
		if strings.Contains(pipelineErr.Message, "nope") {
			t.Fatalf("message leaks database detail: %q", pipelineErr.Message)
		}
	}
	if translator.calls.Load() != 2 {
		t.Fatalf("translator calls = %d, failed answers must not be cached", translator.calls.Load())
	}
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	translator := &fakeTranslator{sql: "SELECT 1"}
	p := New(fakeSchema{}, translator, &fakeEngine{}, nil, Options{})

	_, err := p.Ask(context.Background(), " \n\t")
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) || pipelineErr.Kind != KindInvalidQuestion {
		t.Fatalf("Ask() error = %v, want invalid_question", err)
	}
	if translator.calls.Load() != 0 {
		t.Fatal("translator called for blank question")
	}
}

func TestAskServesRepeatQuestionFromCache(t *testing.T) {
	translator := &fakeTranslator{sql: topProductsSQL}
	engine := &fakeEngine{result: topProductsResult()}
	p := New(fakeSchema{}, translator, engine, newTestCache(t), Options{})
	ctx := context.Background()

	first, err := p.Ask(ctx, "What are the top 5 best-selling products?")
	if err != nil {
		t.Fatalf("first Ask() error = %v", err)
	}
	second, err := p.Ask(ctx, "  what are the TOP 5 best-selling   products?")
	if err != nil {
		t.Fatalf("second Ask() error = %v", err)
	}
	if first.Cached || !second.Cached {
		t.Fatalf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if translator.calls.Load() != 1 || engine.calls.Load() != 1 {
		t.Fatalf("calls translator=%d engine=%d", translator.calls.Load(), engine.calls.Load())
	}

	second.Cached = false
	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("cached response differs:\n%s\n%s", firstJSON, secondJSON)
	}
}

func TestAskSingleFlightSharesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	translator := &fakeTranslator{sql: topProductsSQL, release: release}
	engine := &fakeEngine{result: topProductsResult()}
	p := New(fakeSchema{}, translator, engine, newTestCache(t), Options{SingleFlight: true})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Ask(context.Background(), "top products")
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
	}
	if translator.calls.Load() != 1 {
		t.Fatalf("translator calls = %d, want 1", translator.calls.Load())
	}
}

func TestStatsRunsThroughGuardAndCaches(t *testing.T) {
	engine := &fakeEngine{result: query.Result{
		Columns: []string{"total_rows", "distinct_tickets", "total_revenue", "total_quantity", "distinct_products", "first_date", "last_date"},
		Rows:    [][]any{{int64(120), int64(40), 1234.5, 300.0, int64(12), "2024-01-01", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}},
	}}
	p := New(fakeSchema{}, &fakeTranslator{}, engine, newTestCache(t), Options{})
	ctx := context.Background()

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := DatasetStats{
		Table:            "sales",
		TotalRows:        120,
		DistinctTickets:  40,
		TotalRevenue:     1234.5,
		TotalQuantity:    300,
		DistinctProducts: 12,
		FirstDate:        "2024-01-01",
		LastDate:         "2024-03-31",
	}
	if stats != want {
		t.Fatalf("stats = %#v, want %#v", stats, want)
	}
	if !strings.HasPrefix(engine.requests[0].SQL, "SELECT") || engine.requests[0].MaxRows != 1 {
		t.Fatalf("engine request = %#v", engine.requests[0])
	}

	again, err := p.Stats(ctx)
	if err != nil {
		t.Fatalf("second Stats() error = %v", err)
	}
	want.Cached = true
	if again != want {
		t.Fatalf("cached stats = %#v", again)
	}
	if engine.calls.Load() != 1 {
		t.Fatalf("engine calls = %d, want 1", engine.calls.Load())
	}
}

func TestStatsExecutionFailure(t *testing.T) {
	engine := &fakeEngine{err: &query.ExecutionError{Err: errors.New("table sales does not exist")}}
	p := New(fakeSchema{}, &fakeTranslator{}, engine, nil, Options{})

	_, err := p.Stats(context.Background())
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) || pipelineErr.Kind != KindExecution {
		t.Fatalf("Stats() error = %v, want execution_error", err)
	}
}

func TestCacheStatsWhenDisabled(t *testing.T) {
	p := New(fakeSchema{}, &fakeTranslator{}, &fakeEngine{}, nil, Options{})
	if got := p.CacheStats(context.Background()).Backend; got != "disabled" {
		t.Fatalf("backend = %q", got)
	}
}
