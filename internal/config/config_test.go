package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("salesinsight-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Store.Driver != "duckdb" {
		t.Fatalf("Store.Driver = %q", cfg.Store.Driver)
	}
	if cfg.Query.MaxRows != 1000 {
		t.Fatalf("Query.MaxRows = %d", cfg.Query.MaxRows)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("Cache.Backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.QueryTTL != 5*time.Minute || cfg.Cache.StatsTTL != 30*time.Minute {
		t.Fatalf("cache ttls = %s/%s", cfg.Cache.QueryTTL, cfg.Cache.StatsTTL)
	}
	if cfg.Cache.SingleFlight {
		t.Fatal("Cache.SingleFlight should default to false")
	}
	if cfg.Dataset.Table != "sales" {
		t.Fatalf("Dataset.Table = %q", cfg.Dataset.Table)
	}
	if cfg.AI.RequestsPerMinute != 60 {
		t.Fatalf("AI.RequestsPerMinute = %d", cfg.AI.RequestsPerMinute)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("salesinsight-api", mapLookup(map[string]string{"SALESINSIGHT_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadTestProfileUsesInMemoryStore(t *testing.T) {
	cfg, err := Load("salesinsight-api", mapLookup(map[string]string{"SALESINSIGHT_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.DSN != "" {
		t.Fatalf("Store.DSN = %q, want in-memory", cfg.Store.DSN)
	}
	if cfg.Dataset.LoadOnStart {
		t.Fatal("Dataset.LoadOnStart should be false in test")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	cfg, err := Load("salesinsight-api", mapLookup(map[string]string{
		"SALESINSIGHT_PROFILE":                "test",
		"SALESINSIGHT_SERVICE_NAME":           "salesinsight-custom",
		"SALESINSIGHT_HTTP_ADDR":              ":9999",
		"SALESINSIGHT_HTTP_READ_TIMEOUT":      "2s",
		"SALESINSIGHT_HTTP_REQUEST_TIMEOUT":   "7s",
		"SALESINSIGHT_LOG_LEVEL":              "error",
		"SALESINSIGHT_AUTH_REQUIRED":          "true",
		"SALESINSIGHT_AUTH_STATIC_KEYS":       "k1:dashboard:sales_reader",
		"SALESINSIGHT_STORE_DRIVER":           "postgres",
		"SALESINSIGHT_STORE_DSN":              "postgres://example",
		"SALESINSIGHT_STORE_MAX_OPEN_CONNS":   "42",
		"SALESINSIGHT_OBJECTSTORE_BUCKET":     "sales-prod",
		"SALESINSIGHT_DATASET_SOURCE":         "s3://exports/sales.parquet",
		"SALESINSIGHT_DATASET_BATCH_SIZE":     "250",
		"SALESINSIGHT_QUERY_MAX_ROWS":         "50",
		"SALESINSIGHT_QUERY_TIMEOUT":          "3s",
		"SALESINSIGHT_CACHE_BACKEND":          "fallback",
		"SALESINSIGHT_CACHE_REDIS_URL":        "redis://localhost:6379/0",
		"SALESINSIGHT_CACHE_MAX_ENTRIES":      "10",
		"SALESINSIGHT_CACHE_QUERY_TTL":        "1m",
		"SALESINSIGHT_CACHE_STATS_TTL":        "2h",
		"SALESINSIGHT_CACHE_SINGLE_FLIGHT":    "true",
		"SALESINSIGHT_AI_BASE_URL":            "https://api.example.com",
		"SALESINSIGHT_AI_API_KEY":             "secret-key",
		"SALESINSIGHT_AI_MODEL":               "gpt-4o",
		"SALESINSIGHT_AI_TEMPERATURE":         "0.3",
		"SALESINSIGHT_AI_TIMEOUT":             "21s",
		"SALESINSIGHT_AI_REQUESTS_PER_MINUTE": "5",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "salesinsight-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.RequestTimeout != 7*time.Second {
		t.Fatalf("HTTP = %#v", cfg.HTTP)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:dashboard:sales_reader" {
		t.Fatalf("Auth = %#v", cfg.Auth)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://example" || cfg.Store.MaxOpenConns != 42 {
		t.Fatalf("Store = %#v", cfg.Store)
	}
	if cfg.ObjectStore.Bucket != "sales-prod" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if cfg.Dataset.Source != "s3://exports/sales.parquet" || cfg.Dataset.BatchSize != 250 {
		t.Fatalf("Dataset = %#v", cfg.Dataset)
	}
	if cfg.Query.MaxRows != 50 || cfg.Query.Timeout != 3*time.Second {
		t.Fatalf("Query = %#v", cfg.Query)
	}
	if cfg.Cache.Backend != "fallback" || cfg.Cache.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("Cache = %#v", cfg.Cache)
	}
	if cfg.Cache.MaxEntries != 10 || cfg.Cache.QueryTTL != time.Minute || cfg.Cache.StatsTTL != 2*time.Hour {
		t.Fatalf("Cache = %#v", cfg.Cache)
	}
	if !cfg.Cache.SingleFlight {
		t.Fatal("Cache.SingleFlight = false, want true")
	}
	if cfg.AI.BaseURL != "https://api.example.com" || cfg.AI.APIKey != "secret-key" || cfg.AI.Model != "gpt-4o" {
		t.Fatalf("AI = %#v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.3 || cfg.AI.Timeout != 21*time.Second || cfg.AI.RequestsPerMinute != 5 {
		t.Fatalf("AI = %#v", cfg.AI)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"SALESINSIGHT_PROFILE": "oops"},
		{"SALESINSIGHT_HTTP_READ_TIMEOUT": "NaN"},
		{"SALESINSIGHT_STORE_MAX_OPEN_CONNS": "oops"},
		{"SALESINSIGHT_STORE_DRIVER": "sqlite"},
		{"SALESINSIGHT_CACHE_BACKEND": "memcached"},
		{"SALESINSIGHT_CACHE_BACKEND": "redis"},
		{"SALESINSIGHT_CACHE_QUERY_TTL": "0s"},
		{"SALESINSIGHT_QUERY_MAX_ROWS": "0"},
		{"SALESINSIGHT_AI_TEMPERATURE": "bad"},
		{"SALESINSIGHT_AUTH_REQUIRED": "not-bool"},
		{"SALESINSIGHT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("salesinsight-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
