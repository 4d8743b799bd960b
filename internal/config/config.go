package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	ObjectStore   ObjectStoreConfig
	Dataset       DatasetConfig
	Query         QueryConfig
	Cache         CacheConfig
	AI            AIConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

type StoreConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type DatasetConfig struct {
	Source        string
	Table         string
	LoadOnStart   bool
	BatchSize     int
	WatchInterval time.Duration
}

type QueryConfig struct {
	MaxRows int
	Timeout time.Duration
}

type CacheConfig struct {
	Backend      string
	RedisURL     string
	MaxEntries   int
	QueryTTL     time.Duration
	StatsTTL     time.Duration
	SingleFlight bool
}

type AIConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	Timeout           time.Duration
	RequestsPerMinute int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SALESINSIGHT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SALESINSIGHT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "SALESINSIGHT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "SALESINSIGHT_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "SALESINSIGHT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SALESINSIGHT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SALESINSIGHT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyDuration(lookup, "SALESINSIGHT_HTTP_REQUEST_TIMEOUT", &cfg.HTTP.RequestTimeout) },
		func() error { return applyString(lookup, "SALESINSIGHT_STORE_DRIVER", &cfg.Store.Driver) },
		func() error { return applyString(lookup, "SALESINSIGHT_STORE_DSN", &cfg.Store.DSN) },
		func() error { return applyInt(lookup, "SALESINSIGHT_STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns) },
		func() error { return applyInt(lookup, "SALESINSIGHT_STORE_MAX_IDLE_CONNS", &cfg.Store.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "SALESINSIGHT_STORE_CONN_MAX_IDLE_TIME", &cfg.Store.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "SALESINSIGHT_STORE_CONN_MAX_LIFETIME", &cfg.Store.ConnMaxLifetime)
		},
		func() error { return applyString(lookup, "SALESINSIGHT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "SALESINSIGHT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "SALESINSIGHT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "SALESINSIGHT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "SALESINSIGHT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "SALESINSIGHT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "SALESINSIGHT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "SALESINSIGHT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "SALESINSIGHT_DATASET_SOURCE", &cfg.Dataset.Source) },
		func() error { return applyString(lookup, "SALESINSIGHT_DATASET_TABLE", &cfg.Dataset.Table) },
		func() error { return applyBool(lookup, "SALESINSIGHT_DATASET_LOAD_ON_START", &cfg.Dataset.LoadOnStart) },
		func() error { return applyInt(lookup, "SALESINSIGHT_DATASET_BATCH_SIZE", &cfg.Dataset.BatchSize) },
		func() error {
			return applyDuration(lookup, "SALESINSIGHT_DATASET_WATCH_INTERVAL", &cfg.Dataset.WatchInterval)
		},
		func() error { return applyInt(lookup, "SALESINSIGHT_QUERY_MAX_ROWS", &cfg.Query.MaxRows) },
		func() error { return applyDuration(lookup, "SALESINSIGHT_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyString(lookup, "SALESINSIGHT_CACHE_BACKEND", &cfg.Cache.Backend) },
		func() error { return applyString(lookup, "SALESINSIGHT_CACHE_REDIS_URL", &cfg.Cache.RedisURL) },
		func() error { return applyInt(lookup, "SALESINSIGHT_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries) },
		func() error { return applyDuration(lookup, "SALESINSIGHT_CACHE_QUERY_TTL", &cfg.Cache.QueryTTL) },
		func() error { return applyDuration(lookup, "SALESINSIGHT_CACHE_STATS_TTL", &cfg.Cache.StatsTTL) },
		func() error { return applyBool(lookup, "SALESINSIGHT_CACHE_SINGLE_FLIGHT", &cfg.Cache.SingleFlight) },
		func() error { return applyString(lookup, "SALESINSIGHT_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "SALESINSIGHT_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "SALESINSIGHT_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "SALESINSIGHT_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "SALESINSIGHT_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "SALESINSIGHT_AI_REQUESTS_PER_MINUTE", &cfg.AI.RequestsPerMinute) },
		func() error { return applyBool(lookup, "SALESINSIGHT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SALESINSIGHT_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "SALESINSIGHT_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "SALESINSIGHT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.Store.Driver {
	case "duckdb", "postgres":
	default:
		return fmt.Errorf("invalid SALESINSIGHT_STORE_DRIVER: %q", c.Store.Driver)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "fallback":
	default:
		return fmt.Errorf("invalid SALESINSIGHT_CACHE_BACKEND: %q", c.Cache.Backend)
	}
	if c.Cache.Backend != "memory" && c.Cache.RedisURL == "" {
		return fmt.Errorf("SALESINSIGHT_CACHE_REDIS_URL is required for cache backend %q", c.Cache.Backend)
	}
	if c.Query.MaxRows <= 0 {
		return fmt.Errorf("SALESINSIGHT_QUERY_MAX_ROWS must be positive")
	}
	if c.Cache.QueryTTL <= 0 || c.Cache.StatsTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "salesinsight-api"},
		HTTP: HTTPConfig{
			Address:        ":8080",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 45 * time.Second,
		},
		Store: StoreConfig{
			Driver:          "duckdb",
			DSN:             "data.duckdb",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "salesinsight",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Dataset: DatasetConfig{
			Source:        "data.csv",
			Table:         "sales",
			LoadOnStart:   true,
			BatchSize:     1000,
			WatchInterval: 30 * time.Second,
		},
		Query: QueryConfig{
			MaxRows: 1000,
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			MaxEntries: 1000,
			QueryTTL:   5 * time.Minute,
			StatsTTL:   30 * time.Minute,
		},
		AI: AIConfig{
			BaseURL:           "https://api.openai.com",
			Model:             "gpt-4",
			Temperature:       0,
			Timeout:           20 * time.Second,
			RequestsPerMinute: 60,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Store.DSN = ""
		cfg.Dataset.LoadOnStart = false
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
