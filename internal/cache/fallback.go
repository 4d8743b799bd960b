package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Fallback serves from primary and switches to secondary for any call the
// primary fails. Entries written during a primary outage stay readable from
// the secondary until they expire.
type Fallback struct {
	primary   Backend
	secondary Backend
	logger    *slog.Logger
}

func NewFallback(primary, secondary Backend, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Name() string { return f.primary.Name() + "+" + f.secondary.Name() }

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := f.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrMiss) {
		f.degraded(ctx, "get", err)
	}
	return f.secondary.Get(ctx, key)
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := f.primary.Set(ctx, key, value, ttl)
	if err == nil {
		return nil
	}
	f.degraded(ctx, "set", err)
	return f.secondary.Set(ctx, key, value, ttl)
}

func (f *Fallback) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := f.primary.Exists(ctx, key)
	if err != nil {
		f.degraded(ctx, "exists", err)
		return f.secondary.Exists(ctx, key)
	}
	if ok {
		return true, nil
	}
	return f.secondary.Exists(ctx, key)
}

func (f *Fallback) Len(ctx context.Context) (int, error) {
	secondary, err := f.secondary.Len(ctx)
	if err != nil {
		return 0, err
	}
	primary, err := f.primary.Len(ctx)
	if err != nil {
		f.degraded(ctx, "len", err)
		return secondary, nil
	}
	return primary + secondary, nil
}

func (f *Fallback) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}

func (f *Fallback) degraded(ctx context.Context, op string, err error) {
	f.logger.WarnContext(ctx, "cache primary failed, using fallback",
		slog.String("op", op),
		slog.String("primary", f.primary.Name()),
		slog.Any("error", err),
	)
}
