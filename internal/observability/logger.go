package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/salesinsight/salesinsight/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// NewLogger builds the process logger. Every record carries the service,
// profile and the sales table questions are answered against.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, options)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	}
	attrs := []any{
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	}
	if cfg.Dataset.Table != "" {
		attrs = append(attrs, slog.String("dataset_table", cfg.Dataset.Table))
	}
	return slog.New(handler).With(attrs...)
}

// WithTrace scopes logger to the request trace carried by ctx.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return logger
	}
	return logger.With(slog.String("trace_id", traceID))
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
