// Package cache provides the shared TTL cache used for resolved identifier
// documents and discovered JWKS. The primary backing store is redis; when it
// is unreachable the cache degrades, once per process, to a bounded in-process
// store that honours the same TTL contract but is not shared across replicas.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jeswr/lws-go/pkg/logging"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = redis.Nil

// Cache is the TTL cache contract. Values are opaque serialized documents.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// New connects to the redis endpoint and returns a degradable cache around
// it. An empty endpoint selects the in-process store directly. Connection
// failure at init falls back the same way a mid-flight failure does.
func New(ctx context.Context, endpoint string) Cache {
	if endpoint == "" {
		return NewMemory()
	}
	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		logger := logging.GetLogger("cache")
		logger.Warn().Err(err).Str("endpoint", endpoint).
			Msg("invalid cache endpoint, using process-local cache")
		return NewMemory()
	}
	client := redis.NewClient(opts)
	c := &degradable{primary: &redisCache{client: client}, fallback: NewMemory()}
	if err := client.Ping(ctx).Err(); err != nil {
		c.degrade(err)
	}
	return c
}

// degradable wraps a redis cache with a one-way latch to a process-local
// fallback. Once degraded, the per-request path never touches redis again.
type degradable struct {
	primary  *redisCache
	fallback Cache
	degraded atomic.Bool
	once     sync.Once
}

func (c *degradable) degrade(err error) {
	c.once.Do(func() {
		c.degraded.Store(true)
		logger := logging.GetLogger("cache")
		logger.Warn().Err(err).
			Msg("shared cache unavailable, degrading to process-local cache; entries are no longer shared across replicas")
	})
}

func (c *degradable) Get(ctx context.Context, key string) (string, error) {
	if !c.degraded.Load() {
		v, err := c.primary.Get(ctx, key)
		if err == nil || err == ErrMiss {
			return v, err
		}
		c.degrade(err)
	}
	return c.fallback.Get(ctx, key)
}

func (c *degradable) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	if !c.degraded.Load() {
		if err := c.primary.Put(ctx, key, value, ttl); err != nil {
			c.degrade(err)
		} else {
			return nil
		}
	}
	return c.fallback.Put(ctx, key, value, ttl)
}

func (c *degradable) Delete(ctx context.Context, key string) error {
	if !c.degraded.Load() {
		if err := c.primary.Delete(ctx, key); err != nil {
			c.degrade(err)
		} else {
			return nil
		}
	}
	return c.fallback.Delete(ctx, key)
}

func (c *degradable) Clear(ctx context.Context) error {
	if !c.degraded.Load() {
		if err := c.primary.Clear(ctx); err != nil {
			c.degrade(err)
		} else {
			return nil
		}
	}
	return c.fallback.Clear(ctx)
}

func (c *degradable) Close() error {
	_ = c.fallback.Close()
	return c.primary.client.Close()
}

// redisCache wraps go-redis.
type redisCache struct {
	client *redis.Client
}

func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *redisCache) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisCache) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
