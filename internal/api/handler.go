package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salesinsight/salesinsight/internal/auth"
	"github.com/salesinsight/salesinsight/internal/cache"
	"github.com/salesinsight/salesinsight/internal/config"
	"github.com/salesinsight/salesinsight/internal/observability"
	"github.com/salesinsight/salesinsight/internal/pipeline"
	"github.com/salesinsight/salesinsight/internal/schema"
)

type ReadinessCheck func(ctx context.Context) error

// Analyst answers questions about the sales data.
type Analyst interface {
	Ask(ctx context.Context, question string) (pipeline.Response, error)
	Stats(ctx context.Context) (pipeline.DatasetStats, error)
	Schema(ctx context.Context) (schema.Description, error)
	CacheStats(ctx context.Context) cache.Stats
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Analyst           Analyst
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			if deps.Logger != nil {
				deps.Logger.WarnContext(r.Context(), "readiness check failed", slog.Any("error", err))
			}
			writeError(r.Context(), w, http.StatusServiceUnavailable, "not_ready", "a dependency is unavailable", true)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	readers := auth.RequireRole(auth.RoleSalesReader, auth.RoleOperator)
	operators := auth.RequireRole(auth.RoleOperator)

	protected := http.NewServeMux()
	protected.Handle("POST /v1/ask", readers(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})))
	protected.Handle("GET /v1/stats", readers(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleStats(deps, w, r)
	})))
	protected.Handle("GET /v1/schema", readers(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})))
	protected.Handle("GET /v1/cache/stats", operators(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCacheStats(deps, w, r)
	})))

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "auth_middleware_missing", "auth middleware is required by configuration", false)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/ask", protectedHandler)
	mux.Handle("GET /v1/stats", protectedHandler)
	mux.Handle("GET /v1/schema", protectedHandler)
	mux.Handle("GET /v1/cache/stats", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// writeJSON encodes before writing the status so an unencodable payload
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		slog.Error("encode response", slog.Any("error", err))
		status = http.StatusInternalServerError
		body.Reset()
		body.WriteString(`{"error_code":"internal_error","message":"response could not be encoded","retryable":false}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
