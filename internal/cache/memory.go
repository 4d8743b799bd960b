package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryEntries = 1000

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process LRU with per-entry expiry. Expired entries are
// dropped lazily on access.
type Memory struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

func NewMemory(maxEntries int) (*Memory, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}
	entries, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Memory{entries: entries, now: time.Now}, nil
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := m.live(key)
	if !ok {
		return nil, ErrMiss
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries.Add(key, memoryEntry{value: stored, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.live(key)
	return ok, nil
}

// Len counts unexpired entries. Peek leaves recency untouched.
func (m *Memory) Len(_ context.Context) (int, error) {
	now := m.now()
	live := 0
	for _, key := range m.entries.Keys() {
		if entry, ok := m.entries.Peek(key); ok && now.Before(entry.expiresAt) {
			live++
		}
	}
	return live, nil
}

func (m *Memory) Close() error {
	m.entries.Purge()
	return nil
}

func (m *Memory) live(key string) (memoryEntry, bool) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(entry.expiresAt) {
		m.entries.Remove(key)
		return memoryEntry{}, false
	}
	return entry, true
}
