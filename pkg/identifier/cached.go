package identifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jeswr/lws-go/pkg/cache"
	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/logging"
	"github.com/jeswr/lws-go/pkg/uri"
)

const docKeyPrefix = "ciddoc:"

// CachedResolver bounds the cost of repeated resolution by storing serialized
// documents in the shared cache. The cache is not authoritative: callers
// still verify token claims against the key material they read from it.
type CachedResolver struct {
	resolver *Resolver
	cache    cache.Cache
	// defaultTTL is used when upstream gives no cacheability hint and also
	// caps upstream max-age values.
	defaultTTL time.Duration
	minTTL     time.Duration
}

// NewCachedResolver wraps a resolver with the document cache.
func NewCachedResolver(resolver *Resolver, store cache.Cache, defaultTTL, minTTL time.Duration) *CachedResolver {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if minTTL <= 0 {
		minTTL = time.Minute
	}
	return &CachedResolver{resolver: resolver, cache: store, defaultTTL: defaultTTL, minTTL: minTTL}
}

// ResolveCID returns the cached document when present, otherwise fetches,
// validates and caches it with ttl = min(upstream max-age, configured
// default), clamped to the configured minimum.
func (c *CachedResolver) ResolveCID(ctx context.Context, rawURI string) (*Document, error) {
	normalized, err := uri.Normalize(rawURI)
	if err != nil {
		return nil, err
	}
	key := docKeyPrefix + normalized

	if serialized, err := c.cache.Get(ctx, key); err == nil {
		var doc Document
		if err := json.Unmarshal([]byte(serialized), &doc); err == nil {
			return &doc, nil
		}
		// A corrupt entry is dropped and resolved fresh.
		_ = c.cache.Delete(ctx, key)
	}

	doc, maxAge, err := c.resolver.ResolveCID(ctx, rawURI)
	if err != nil {
		return nil, err
	}

	ttl := c.defaultTTL
	if maxAge > 0 && maxAge < ttl {
		ttl = maxAge
	}
	if ttl < c.minTTL {
		ttl = c.minTTL
	}
	if serialized, err := json.Marshal(doc); err == nil {
		if err := c.cache.Put(ctx, key, string(serialized), ttl); err != nil {
			logger := logging.GetLogger("identifier")
			logger.Warn().Err(err).Str("identifier", normalized).
				Msg("failed to cache resolved document")
		}
	}
	return doc, nil
}

// VerificationKey resolves the identifier through the cache and extracts the
// key named by kid.
func (c *CachedResolver) VerificationKey(ctx context.Context, rawURI, kid string) (*JWK, error) {
	doc, err := c.ResolveCID(ctx, rawURI)
	if err != nil {
		return nil, err
	}
	vm := doc.VerificationMethodByKid(kid)
	if vm == nil {
		return nil, errors.Newf(errors.ErrCodeNoVerificationMethod, "no verification method %q in %s", kid, rawURI)
	}
	return vm.PublicKeyJwk, nil
}
