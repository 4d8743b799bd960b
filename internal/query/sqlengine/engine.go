package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/salesinsight/salesinsight/internal/observability"
	"github.com/salesinsight/salesinsight/internal/query"
)

type Engine struct {
	DB      *sql.DB
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewEngine(db *sql.DB, timeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{DB: db, Timeout: timeout, Logger: logger}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, e.fail(ctx, request.SQL, fmt.Errorf("sql is required"))
	}
	if e.DB == nil {
		return query.Result{}, e.fail(ctx, request.SQL, fmt.Errorf("database is required"))
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := e.DB.Conn(ctx)
	if err != nil {
		return query.Result{}, e.fail(ctx, request.SQL, fmt.Errorf("checkout connection: %w", err))
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, request.SQL)
	if err != nil {
		return query.Result{}, e.fail(ctx, request.SQL, fmt.Errorf("execute query: %w", err))
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, e.fail(ctx, request.SQL, fmt.Errorf("query columns: %w", err))
	}

	truncated := false
	resultRows := make([][]any, 0)
	for rows.Next() {
		if request.MaxRows > 0 && len(resultRows) >= request.MaxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, e.fail(ctx, request.SQL, fmt.Errorf("scan row: %w", err))
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, e.fail(ctx, request.SQL, fmt.Errorf("iterate rows: %w", err))
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

func (e *Engine) fail(ctx context.Context, sqlText string, err error) error {
	if e.Logger != nil {
		observability.WithTrace(ctx, e.Logger).ErrorContext(ctx, "query execution failed",
			slog.String("sql", sqlText),
			slog.Any("error", err),
		)
	}
	return &query.ExecutionError{Err: err}
}

// normalizeValues turns driver values into JSON-encodable ones. Non-finite
// floats become nil and map keys become strings.
func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case *big.Int:
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case duckdb.Decimal:
		return finite(typed.Float64())
	case float64:
		return finite(typed)
	case float32:
		return finite(float64(typed))
	case duckdb.Map:
		return normalizeMap(typed)
	case map[any]any:
		return normalizeMap(typed)
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalizeValue(item)
		}
		return out
	case []any:
		return normalizeValues(typed)
	default:
		return typed
	}
}

func normalizeMap(m map[any]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, item := range m {
		out[fmt.Sprint(key)] = normalizeValue(item)
	}
	return out
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
