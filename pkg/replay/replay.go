// Package replay implements the single-use registry for access-token jti
// values. A jti present in the store is treated as used on every node; the
// set-if-absent write is the serialisation point between concurrent requests
// presenting the same token.
package replay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jeswr/lws-go/pkg/logging"
)

const keyPrefix = "jti:"

// Store is the replay registry contract.
type Store interface {
	// IsUsed reports whether the jti has already been consumed.
	IsUsed(ctx context.Context, jti string) (bool, error)
	// MarkUsed records the jti for ttl. It returns false when another request
	// marked it first.
	MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	Close() error
}

// New connects to the redis endpoint and returns a degradable store. An empty
// endpoint selects the process-local store, which prevents replay only within
// this process.
func New(ctx context.Context, endpoint string) Store {
	if endpoint == "" {
		logger := logging.GetLogger("replay")
		logger.Warn().
			Msg("no jti store endpoint configured; replay prevention is process-local only")
		return NewMemory()
	}
	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		logger := logging.GetLogger("replay")
		logger.Warn().Err(err).Str("endpoint", endpoint).
			Msg("invalid jti store endpoint, using process-local store")
		return NewMemory()
	}
	client := redis.NewClient(opts)
	s := &degradable{primary: &redisStore{client: client}, fallback: NewMemory()}
	if err := client.Ping(ctx).Err(); err != nil {
		s.degrade(err)
	}
	return s
}

// degradable wraps a redis store with a one-way latch to the process-local
// fallback.
type degradable struct {
	primary  *redisStore
	fallback *Memory
	degraded atomic.Bool
	once     sync.Once
}

func (s *degradable) degrade(err error) {
	s.once.Do(func() {
		s.degraded.Store(true)
		logger := logging.GetLogger("replay")
		logger.Warn().Err(err).
			Msg("shared jti store unavailable, degrading to process-local store; replay across nodes is no longer prevented")
	})
}

func (s *degradable) IsUsed(ctx context.Context, jti string) (bool, error) {
	if !s.degraded.Load() {
		used, err := s.primary.IsUsed(ctx, jti)
		if err == nil {
			return used, nil
		}
		s.degrade(err)
	}
	return s.fallback.IsUsed(ctx, jti)
}

func (s *degradable) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if !s.degraded.Load() {
		ok, err := s.primary.MarkUsed(ctx, jti, ttl)
		if err == nil {
			return ok, nil
		}
		s.degrade(err)
	}
	return s.fallback.MarkUsed(ctx, jti, ttl)
}

func (s *degradable) Close() error {
	_ = s.fallback.Close()
	return s.primary.client.Close()
}

// redisStore marks jtis with SET NX EX; expiry is handled by the server.
type redisStore struct {
	client *redis.Client
}

func (r *redisStore) IsUsed(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisStore) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+jti, "1", clampTTL(ttl)).Result()
}

// Memory is the process-local fallback: a mutex around a map of jti to
// expiry. Reads under the mutex never perform I/O.
type Memory struct {
	mu    sync.Mutex
	items map[string]time.Time
}

// NewMemory creates a process-local replay store.
func NewMemory() *Memory {
	return &Memory{items: map[string]time.Time{}}
}

func (m *Memory) IsUsed(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	_, ok := m.items[jti]
	return ok, nil
}

func (m *Memory) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	if _, ok := m.items[jti]; ok {
		return false, nil
	}
	m.items[jti] = time.Now().Add(clampTTL(ttl))
	return true, nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) sweepLocked() {
	now := time.Now()
	for jti, exp := range m.items {
		if now.After(exp) {
			delete(m.items, jti)
		}
	}
}

// clampTTL enforces a one-second floor so an entry is never written already
// expired, as happens when exp lies inside the skew window. An entry lives
// until the token's exp or one second from now, whichever is later; it does
// not cover the skew tolerance past exp during which the token still passes
// validation.
func clampTTL(ttl time.Duration) time.Duration {
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
