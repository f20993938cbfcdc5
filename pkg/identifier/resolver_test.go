package identifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeswr/lws-go/pkg/cache"
	"github.com/jeswr/lws-go/pkg/errors"
)

// docServer serves a CID document whose id matches the server's own URL.
func docServer(t *testing.T, mutate func(doc *Document), header http.Header) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Contains(t, r.Header.Get("Accept"), "application/ld+json")
		doc := &Document{
			Context: contextList{"https://www.w3.org/ns/cid/v1"},
			ID:      server.URL + "/profile",
			Authentication: []VerificationMethod{{
				ID:           server.URL + "/profile#key-1",
				Type:         "JsonWebKey",
				Controller:   server.URL + "/profile",
				PublicKeyJwk: &JWK{Kty: "OKP", Crv: "Ed25519", Alg: "EdDSA", Kid: "key-1", X: b64Encode(make([]byte, 32))},
			}},
		}
		if mutate != nil {
			mutate(doc)
		}
		for k, vs := range header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	return server, &hits
}

func TestResolveCID(t *testing.T) {
	server, _ := docServer(t, nil, nil)
	defer server.Close()

	r := NewResolver(ResolverOptions{HTTPSOnly: true})
	doc, maxAge, err := r.ResolveCID(context.Background(), server.URL+"/profile")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/profile", doc.ID)
	assert.Zero(t, maxAge)

	vm := doc.VerificationMethodByKid("key-1")
	require.NotNil(t, vm)
	assert.Equal(t, "EdDSA", vm.PublicKeyJwk.Alg)
}

func TestResolveCIDMaxAge(t *testing.T) {
	header := http.Header{}
	header.Set("Cache-Control", "public, max-age=120")
	server, _ := docServer(t, nil, header)
	defer server.Close()

	r := NewResolver(ResolverOptions{})
	_, maxAge, err := r.ResolveCID(context.Background(), server.URL+"/profile")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, maxAge)
}

func TestResolveCIDHTTPSOnly(t *testing.T) {
	r := NewResolver(ResolverOptions{HTTPSOnly: true})

	// Loopback is exempt; a plain-http remote host is not. The remote case
	// fails before any network traffic.
	_, _, err := r.ResolveCID(context.Background(), "http://example.com/profile")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeHTTPSRequired))

	_, _, err = r.ResolveCID(context.Background(), "ftp://example.com/profile")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidURI))
}

func TestResolveCIDTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"` + strings.Repeat("x", 2048) + `"}`))
	}))
	defer server.Close()

	r := NewResolver(ResolverOptions{MaxBytes: 1024})
	_, _, err := r.ResolveCID(context.Background(), server.URL+"/profile")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDocumentTooLarge))
}

func TestResolveCIDFetchFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	r := NewResolver(ResolverOptions{})
	_, _, err := r.ResolveCID(context.Background(), server.URL+"/profile")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeFetchFailed))
}

func TestResolveCIDTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	r := NewResolver(ResolverOptions{Timeout: 20 * time.Millisecond})
	_, _, err := r.ResolveCID(context.Background(), server.URL+"/profile")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout))
}

func TestResolveCIDInvalidDocument(t *testing.T) {
	server, _ := docServer(t, func(doc *Document) {
		doc.ID = "https://someone-else.example/profile"
	}, nil)
	defer server.Close()

	r := NewResolver(ResolverOptions{})
	_, _, err := r.ResolveCID(context.Background(), server.URL+"/profile")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidDocument))
}

func TestCachedResolverServesFromCache(t *testing.T) {
	header := http.Header{}
	header.Set("Cache-Control", "max-age=300")
	server, hits := docServer(t, nil, header)
	defer server.Close()

	cached := NewCachedResolver(NewResolver(ResolverOptions{}), cache.NewMemory(), time.Hour, time.Minute)

	for i := 0; i < 3; i++ {
		doc, err := cached.ResolveCID(context.Background(), server.URL+"/profile")
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/profile", doc.ID)
	}
	assert.Equal(t, 1, *hits)

	key, err := cached.VerificationKey(context.Background(), server.URL+"/profile", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "Ed25519", key.Crv)
	assert.Equal(t, 1, *hits)

	_, err = cached.VerificationKey(context.Background(), server.URL+"/profile", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNoVerificationMethod))
}
