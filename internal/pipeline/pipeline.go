// Package pipeline answers natural-language questions about the sales data.
// A question runs through schema description, SQL generation, the SQL guard,
// execution and chart selection; complete responses are cached by question
// fingerprint.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/salesinsight/salesinsight/internal/cache"
	"github.com/salesinsight/salesinsight/internal/chart"
	"github.com/salesinsight/salesinsight/internal/nl2sql"
	"github.com/salesinsight/salesinsight/internal/observability"
	"github.com/salesinsight/salesinsight/internal/query"
	"github.com/salesinsight/salesinsight/internal/schema"
	"github.com/salesinsight/salesinsight/internal/sqlguard"
)

const defaultMaxRows = 1000

type SchemaSource interface {
	Describe(ctx context.Context) (schema.Description, error)
}

type Data struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type Response struct {
	SQL             string           `json:"sql"`
	Data            Data             `json:"data"`
	ChartSuggestion chart.Suggestion `json:"chart_suggestion"`
	Cached          bool             `json:"cached"`
	RowCount        int              `json:"row_count"`
	Truncated       bool             `json:"truncated"`
}

type Options struct {
	MaxRows        int
	RequestTimeout time.Duration
	StatsTable     string
	SingleFlight   bool
	Logger         *slog.Logger
}

type Pipeline struct {
	schema     SchemaSource
	translator nl2sql.Translator
	engine     query.Engine
	cache      *cache.Cache
	logger     *slog.Logger

	maxRows    int
	timeout    time.Duration
	statsTable string
	group      *singleflight.Group
}

// New wires the collaborators. c may be nil to disable caching.
func New(source SchemaSource, translator nl2sql.Translator, engine query.Engine, c *cache.Cache, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	statsTable := opts.StatsTable
	if statsTable == "" {
		statsTable = schema.SalesTable.Name
	}
	p := &Pipeline{
		schema:     source,
		translator: translator,
		engine:     engine,
		cache:      c,
		logger:     logger,
		maxRows:    maxRows,
		timeout:    opts.RequestTimeout,
		statsTable: statsTable,
	}
	if opts.SingleFlight {
		p.group = &singleflight.Group{}
	}
	return p
}

// Ask answers one question. Errors are always *Error.
func (p *Pipeline) Ask(ctx context.Context, question string) (Response, error) {
	start := time.Now()
	response, err := p.ask(ctx, question)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = string(err.Kind)
		observability.WithTrace(ctx, p.logger).WarnContext(ctx, "question failed",
			slog.String("error_code", string(err.Kind)),
			slog.Any("error", err.Unwrap()),
		)
	case response.Cached:
		outcome = "cached"
	}
	observability.ObserveAsk(outcome, time.Since(start))
	if err != nil {
		return Response{}, err
	}
	return response, nil
}

func (p *Pipeline) ask(ctx context.Context, question string) (Response, *Error) {
	if strings.TrimSpace(question) == "" {
		return Response{}, invalidQuestion("question is required")
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	key := cache.Key(cache.ClassQuery, question)
	if cached, ok := p.cachedResponse(ctx, key); ok {
		return cached, nil
	}

	if p.group == nil {
		response, err := p.answer(ctx, question, key)
		if err != nil {
			return Response{}, classify(err)
		}
		return response, nil
	}
	value, err, _ := p.group.Do(key, func() (any, error) {
		return p.answer(ctx, question, key)
	})
	if err != nil {
		return Response{}, classify(err)
	}
	return value.(Response), nil
}

func (p *Pipeline) answer(ctx context.Context, question, key string) (Response, error) {
	description, err := p.schema.Describe(ctx)
	if err != nil {
		return Response{}, &query.ExecutionError{Err: fmt.Errorf("describe schema: %w", err)}
	}

	generationStart := time.Now()
	generated, err := p.translator.Translate(ctx, nl2sql.Request{Question: question, Schema: description.Text})
	observability.ObserveGeneration(time.Since(generationStart))
	if err != nil {
		return Response{}, err
	}

	statement, err := sqlguard.Check(generated.SQL)
	if err != nil {
		observability.WithTrace(ctx, p.logger).WarnContext(ctx, "generated sql rejected",
			slog.String("model", generated.Model),
			slog.String("sql", generated.SQL),
			slog.Any("error", err),
		)
		return Response{}, err
	}

	result, err := p.engine.Execute(ctx, query.Request{SQL: statement, MaxRows: p.maxRows})
	if err != nil {
		return Response{}, err
	}
	observability.ObserveExecution(result.Duration, result.Truncated)

	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	suggestion := chart.Suggest(chart.Input{Question: question, SQL: statement, Columns: columns, Rows: rows})
	observability.ObserveChartSuggestion(string(suggestion.ChartType))

	response := Response{
		SQL:             statement,
		Data:            Data{Columns: columns, Rows: rows},
		ChartSuggestion: suggestion,
		RowCount:        len(rows),
		Truncated:       result.Truncated,
	}
	observability.WithTrace(ctx, p.logger).InfoContext(ctx, "question answered",
		slog.String("sql", statement),
		slog.Int("row_count", response.RowCount),
		slog.Bool("truncated", response.Truncated),
		slog.String("chart_type", string(suggestion.ChartType)),
	)
	p.store(ctx, cache.ClassQuery, key, response)
	return response, nil
}

func (p *Pipeline) cachedResponse(ctx context.Context, key string) (Response, bool) {
	var response Response
	if !p.lookup(ctx, cache.ClassQuery, key, &response) {
		return Response{}, false
	}
	response.Cached = true
	return response, true
}

// lookup decodes with UseNumber so a cached response re-encodes to the same
// bytes it was stored as.
func (p *Pipeline) lookup(ctx context.Context, class cache.Class, key string, target any) bool {
	if p.cache == nil {
		return false
	}
	payload, ok := p.cache.Lookup(ctx, class, key)
	if !ok {
		return false
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		p.logger.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (p *Pipeline) store(ctx context.Context, class cache.Class, key string, value any) {
	if p.cache == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		p.logger.WarnContext(ctx, "encode cache entry", slog.String("key", key), slog.Any("error", err))
		return
	}
	p.cache.Store(ctx, class, key, payload)
}

// Schema returns the description used to ground generation.
func (p *Pipeline) Schema(ctx context.Context) (schema.Description, error) {
	description, err := p.schema.Describe(ctx)
	if err != nil {
		return schema.Description{}, classify(&query.ExecutionError{Err: err})
	}
	return description, nil
}

func (p *Pipeline) CacheStats(ctx context.Context) cache.Stats {
	if p.cache == nil {
		return cache.Stats{Backend: "disabled"}
	}
	return p.cache.Stats(ctx)
}
