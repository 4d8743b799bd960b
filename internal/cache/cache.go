// Package cache memoizes serialized pipeline responses under keys derived
// from the normalized question text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/salesinsight/salesinsight/internal/config"
	"github.com/salesinsight/salesinsight/internal/observability"
)

// ErrMiss is returned by backends when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Class string

const (
	ClassQuery Class = "query"
	ClassStats Class = "stats"
)

type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

type Stats struct {
	Backend string `json:"backend"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Fingerprint lowercases the question and collapses whitespace. Punctuation
// is kept as typed.
func Fingerprint(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

func Key(class Class, question string) string {
	sum := sha256.Sum256([]byte(Fingerprint(question)))
	return string(class) + ":" + hex.EncodeToString(sum[:])
}

// Cache fronts a Backend with per-class TTLs and hit/miss accounting.
// Backend failures never surface to callers.
type Cache struct {
	backend Backend
	ttls    map[Class]time.Duration
	logger  *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

func New(backend Backend, ttls map[Class]time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	copied := make(map[Class]time.Duration, len(ttls))
	for class, ttl := range ttls {
		copied[class] = ttl
	}
	return &Cache{backend: backend, ttls: copied, logger: logger}
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ttls := map[Class]time.Duration{ClassQuery: cfg.QueryTTL, ClassStats: cfg.StatsTTL}

	switch cfg.Backend {
	case "", "memory":
		memory, err := NewMemory(cfg.MaxEntries)
		if err != nil {
			return nil, err
		}
		return New(memory, ttls, logger), nil
	case "redis":
		redisBackend, err := NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := redisBackend.Ping(ctx); err != nil {
			_ = redisBackend.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return New(redisBackend, ttls, logger), nil
	case "fallback":
		redisBackend, err := NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := redisBackend.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "redis unavailable at startup, serving from memory until it recovers", slog.Any("error", err))
		}
		memory, err := NewMemory(cfg.MaxEntries)
		if err != nil {
			_ = redisBackend.Close()
			return nil, err
		}
		return New(NewFallback(redisBackend, memory, logger), ttls, logger), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

// Lookup returns the cached value for key. Backend errors count as misses.
func (c *Cache) Lookup(ctx context.Context, class Class, key string) ([]byte, bool) {
	value, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.WarnContext(ctx, "cache get failed",
				slog.String("backend", c.backend.Name()),
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
		c.misses.Add(1)
		observability.ObserveCacheLookup(string(class), false)
		return nil, false
	}
	c.hits.Add(1)
	observability.ObserveCacheLookup(string(class), true)
	return value, true
}

// Store writes value with the TTL of its class. Failures are logged only.
func (c *Cache) Store(ctx context.Context, class Class, key string, value []byte) {
	ttl, ok := c.ttls[class]
	if !ok || ttl <= 0 {
		c.logger.WarnContext(ctx, "no ttl configured for cache class", slog.String("class", string(class)))
		return
	}
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.logger.WarnContext(ctx, "cache set failed",
			slog.String("backend", c.backend.Name()),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

func (c *Cache) Contains(ctx context.Context, key string) bool {
	ok, err := c.backend.Exists(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache exists failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return ok
}

func (c *Cache) Stats(ctx context.Context) Stats {
	stats := Stats{
		Backend: c.backend.Name(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
	entries, err := c.backend.Len(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "cache size lookup failed", slog.Any("error", err))
		return stats
	}
	stats.Entries = entries
	return stats
}

func (c *Cache) Close() error {
	return c.backend.Close()
}
