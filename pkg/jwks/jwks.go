// Package jwks discovers and fetches JSON Web Key Sets for OpenID issuers and
// for the authorization server's own realm, caching the serialized set
// through the shared document cache.
package jwks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/httpcc"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/jeswr/lws-go/pkg/cache"
	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/uri"
)

const (
	jwksKeyPrefix  = "jwks:"
	discoveryPath  = "/.well-known/openid-configuration"
	maxJWKSBytes   = 256 * 1024
	defaultTimeout = 5 * time.Second
)

// Client fetches JWKS documents with TTL-bounded caching.
type Client struct {
	http       *http.Client
	cache      cache.Cache
	defaultTTL time.Duration
	timeout    time.Duration
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Cache      cache.Cache
	DefaultTTL time.Duration
	Timeout    time.Duration
	HTTP       *http.Client
}

// NewClient creates a JWKS client.
func NewClient(opts ClientOptions) *Client {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	return &Client{http: opts.HTTP, cache: opts.Cache, defaultTTL: opts.DefaultTTL, timeout: opts.Timeout}
}

// ForIssuer resolves the issuer's JWKS via OpenID discovery. The serialized
// set is cached keyed by the normalised issuer.
func (c *Client) ForIssuer(ctx context.Context, issuer string) (jwk.Set, error) {
	normalized, err := uri.Normalize(issuer)
	if err != nil {
		return nil, err
	}
	key := jwksKeyPrefix + normalized

	if serialized, err := c.cache.Get(ctx, key); err == nil {
		if set, err := jwk.Parse([]byte(serialized)); err == nil {
			return set, nil
		}
		_ = c.cache.Delete(ctx, key)
	}

	jwksURI, err := c.discoverJWKSURI(ctx, normalized)
	if err != nil {
		return nil, err
	}
	raw, maxAge, err := c.fetch(ctx, jwksURI)
	if err != nil {
		return nil, err
	}
	set, err := jwk.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidDocument, "issuer JWKS is not a valid key set")
	}

	ttl := c.defaultTTL
	if maxAge > 0 && maxAge < ttl {
		ttl = maxAge
	}
	_ = c.cache.Put(ctx, key, string(raw), ttl)
	return set, nil
}

// discoverJWKSURI reads the issuer's openid-configuration document.
func (c *Client) discoverJWKSURI(ctx context.Context, issuer string) (string, error) {
	raw, _, err := c.fetch(ctx, issuer+discoveryPath)
	if err != nil {
		return "", err
	}
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidDocument, "openid-configuration is not valid JSON")
	}
	if doc.JWKSURI == "" {
		return "", errors.Newf(errors.ErrCodeInvalidDocument, "issuer %s advertises no jwks_uri", issuer)
	}
	return doc.JWKSURI, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInvalidURI, "cannot build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, 0, errors.Wrapf(err, errors.ErrCodeTimeout, "fetch of %s exceeded %s", url, c.timeout)
		}
		return nil, 0, errors.Wrapf(err, errors.ErrCodeFetchFailed, "fetch of %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, errors.Newf(errors.ErrCodeFetchFailed, "fetch of %s returned status %d", url, resp.StatusCode).
			WithDetails("status", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, 0, errors.Wrapf(err, errors.ErrCodeFetchFailed, "read of %s failed", url)
	}
	return body, responseMaxAge(resp), nil
}

func responseMaxAge(resp *http.Response) time.Duration {
	cc := resp.Header.Get("Cache-Control")
	if cc == "" {
		return 0
	}
	directives, err := httpcc.ParseResponse(cc)
	if err != nil {
		return 0
	}
	if maxAge, ok := directives.MaxAge(); ok {
		return time.Duration(maxAge) * time.Second
	}
	return 0
}

// KeyByKid selects a verification key from the set. An empty kid is accepted
// only when the set holds exactly one key.
func KeyByKid(set jwk.Set, kid string) (interface{}, error) {
	var selected jwk.Key
	if kid != "" {
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeKeyNotFound, "no key %q in JWKS", kid)
		}
		selected = key
	} else {
		if set.Len() != 1 {
			return nil, errors.Newf(errors.ErrCodeKeyNotFound, "token has no kid and JWKS holds %d keys", set.Len())
		}
		key, _ := set.Key(0)
		selected = key
	}

	var raw interface{}
	if err := selected.Raw(&raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnsupportedKeyType, "cannot materialise JWKS key")
	}
	return raw, nil
}
