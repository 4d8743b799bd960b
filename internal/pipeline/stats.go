package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/salesinsight/salesinsight/internal/cache"
	"github.com/salesinsight/salesinsight/internal/observability"
	"github.com/salesinsight/salesinsight/internal/query"
	"github.com/salesinsight/salesinsight/internal/sqlguard"
)

type DatasetStats struct {
	Table            string  `json:"table"`
	TotalRows        int64   `json:"total_rows"`
	DistinctTickets  int64   `json:"distinct_tickets"`
	TotalRevenue     float64 `json:"total_revenue"`
	TotalQuantity    float64 `json:"total_quantity"`
	DistinctProducts int64   `json:"distinct_products"`
	FirstDate        string  `json:"first_date"`
	LastDate         string  `json:"last_date"`
	Cached           bool    `json:"cached"`
}

func statsSQL(table string) string {
	return fmt.Sprintf(`SELECT
	COUNT(*) AS total_rows,
	COUNT(DISTINCT ticket_number) AS distinct_tickets,
	COALESCE(SUM(total), 0) AS total_revenue,
	COALESCE(SUM(quantity), 0) AS total_quantity,
	COUNT(DISTINCT product_name) AS distinct_products,
	MIN(date) AS first_date,
	MAX(date) AS last_date
FROM %s`, table)
}

// Stats summarizes the sales table. The summary runs through the same guard
// and executor as generated SQL and is cached under the stats class.
func (p *Pipeline) Stats(ctx context.Context) (DatasetStats, error) {
	start := time.Now()
	stats, err := p.stats(ctx)
	if err != nil {
		observability.WithTrace(ctx, p.logger).WarnContext(ctx, "dataset stats failed",
			slog.Any("error", err.Unwrap()),
		)
		return DatasetStats{}, err
	}
	p.logger.DebugContext(ctx, "dataset stats served",
		slog.Bool("cached", stats.Cached),
		slog.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

func (p *Pipeline) stats(ctx context.Context) (DatasetStats, *Error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	key := cache.Key(cache.ClassStats, p.statsTable)
	var cached DatasetStats
	if p.lookup(ctx, cache.ClassStats, key, &cached) {
		cached.Cached = true
		return cached, nil
	}

	statement, err := sqlguard.Check(statsSQL(p.statsTable))
	if err != nil {
		return DatasetStats{}, classify(err)
	}
	result, err := p.engine.Execute(ctx, query.Request{SQL: statement, MaxRows: 1})
	if err != nil {
		return DatasetStats{}, classify(err)
	}
	observability.ObserveExecution(result.Duration, false)
	if len(result.Rows) != 1 || len(result.Rows[0]) != 7 {
		return DatasetStats{}, classify(&query.ExecutionError{Err: fmt.Errorf("unexpected stats shape: %d rows", len(result.Rows))})
	}

	row := result.Rows[0]
	stats := DatasetStats{
		Table:            p.statsTable,
		TotalRows:        int64(asFloat(row[0])),
		DistinctTickets:  int64(asFloat(row[1])),
		TotalRevenue:     asFloat(row[2]),
		TotalQuantity:    asFloat(row[3]),
		DistinctProducts: int64(asFloat(row[4])),
		FirstDate:        asDate(row[5]),
		LastDate:         asDate(row[6]),
	}
	p.store(ctx, cache.ClassStats, key, stats)
	return stats, nil
}

func asFloat(value any) float64 {
	switch typed := value.(type) {
	case int:
		return float64(typed)
	case int32:
		return float64(typed)
	case int64:
		return float64(typed)
	case uint64:
		return float64(typed)
	case float32:
		return float64(typed)
	case float64:
		return typed
	case *big.Int:
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case json.Number:
		f, _ := typed.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(typed, 64)
		return f
	default:
		return 0
	}
}

func asDate(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case time.Time:
		return typed.Format("2006-01-02")
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
