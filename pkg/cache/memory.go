package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// memoryCacheSize bounds the fallback store so a degraded process cannot
	// grow without limit.
	memoryCacheSize = 4096
	// memorySweepTTL is the coarse eviction horizon of the backing LRU;
	// per-entry TTLs are enforced on read.
	memorySweepTTL = 24 * time.Hour
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a bounded in-process TTL cache. It backs the degraded mode of the
// shared cache and is also used directly when no endpoint is configured.
type Memory struct {
	lru *expirable.LRU[string, memoryEntry]
}

// NewMemory creates an in-process cache.
func NewMemory() *Memory {
	return &Memory{
		lru: expirable.NewLRU[string, memoryEntry](memoryCacheSize, nil, memorySweepTTL),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return "", ErrMiss
	}
	if time.Now().After(entry.expiresAt) {
		m.lru.Remove(key)
		return "", ErrMiss
	}
	return entry.value, nil
}

func (m *Memory) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.lru.Add(key, memoryEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.lru.Purge()
	return nil
}

func (m *Memory) Close() error {
	return nil
}
