package subject

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeswr/lws-go/pkg/cache"
	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/identifier"
)

// cidHost publishes a CID document for an Ed25519 key at <url>/profile.
type cidHost struct {
	server *httptest.Server
	priv   ed25519.PrivateKey
	kid    string
}

func (h *cidHost) id() string {
	return h.server.URL + "/profile"
}

func newCIDHost(t *testing.T) *cidHost {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	host := &cidHost{priv: priv, kid: "key-1"}
	host.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := host.id()
		doc := map[string]interface{}{
			"@context": []string{"https://www.w3.org/ns/cid/v1"},
			"id":       id,
			"authentication": []map[string]interface{}{{
				"id":         id + "#" + host.kid,
				"type":       "JsonWebKey",
				"controller": id,
				"publicKeyJwk": map[string]string{
					"kty": "OKP",
					"crv": "Ed25519",
					"alg": "EdDSA",
					"kid": host.kid,
					"x":   base64.RawURLEncoding.EncodeToString(pub),
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(host.server.Close)
	return host
}

func (h *cidHost) token(t *testing.T, mutate func(claims jwt.MapClaims)) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       h.id(),
		"iss":       h.id(),
		"client_id": h.id(),
		"aud":       testRealm,
		"iat":       now.Unix(),
		"exp":       now.Add(300 * time.Second).Unix(),
		"jti":       "self-issued-1",
	}
	if mutate != nil {
		mutate(claims)
	}
	return signTestToken(t, jwt.SigningMethodEdDSA, h.priv, h.kid, claims)
}

func newTestCIDValidator(t *testing.T) *SSICIDValidator {
	resolver := identifier.NewCachedResolver(
		identifier.NewResolver(identifier.ResolverOptions{HTTPSOnly: true}),
		cache.NewMemory(), time.Hour, time.Minute)
	return NewSSICIDValidator(resolver, 60*time.Second)
}

func TestSSICIDValidateHappyPath(t *testing.T) {
	host := newCIDHost(t)
	v := newTestCIDValidator(t)

	principal, err := v.Validate(context.Background(), host.token(t, nil), testRealm)
	require.NoError(t, err)
	assert.Equal(t, host.id(), principal.Subject)
	assert.Equal(t, host.id(), principal.Issuer)
	assert.Equal(t, host.id(), principal.ClientID)
	assert.Equal(t, SuiteSSICID, principal.AuthSuite)
	assert.Equal(t, "self-issued-1", principal.SubjectTokenID)
}

func TestSSICIDValidateSelfIssuedMismatch(t *testing.T) {
	host := newCIDHost(t)
	v := newTestCIDValidator(t)

	token := host.token(t, func(claims jwt.MapClaims) {
		claims["client_id"] = "https://b.example"
	})
	_, err := v.Validate(context.Background(), token, testRealm)
	assert.True(t, errors.Is(err, errors.ErrCodeSelfIssuedMismatch))

	token = host.token(t, func(claims jwt.MapClaims) {
		claims["iss"] = "https://b.example"
	})
	_, err = v.Validate(context.Background(), token, testRealm)
	assert.True(t, errors.Is(err, errors.ErrCodeSelfIssuedMismatch))
}

func TestSSICIDValidateMissingJti(t *testing.T) {
	host := newCIDHost(t)
	v := newTestCIDValidator(t)

	token := host.token(t, func(claims jwt.MapClaims) {
		delete(claims, "jti")
	})
	_, err := v.Validate(context.Background(), token, testRealm)
	assert.True(t, errors.Is(err, errors.ErrCodeMissingClaim))
}

func TestSSICIDValidateMissingKid(t *testing.T) {
	host := newCIDHost(t)
	v := newTestCIDValidator(t)

	now := time.Now()
	token := signTestToken(t, jwt.SigningMethodEdDSA, host.priv, "", jwt.MapClaims{
		"sub":       host.id(),
		"iss":       host.id(),
		"client_id": host.id(),
		"aud":       testRealm,
		"iat":       now.Unix(),
		"exp":       now.Add(300 * time.Second).Unix(),
		"jti":       "self-issued-2",
	})
	_, err := v.Validate(context.Background(), token, testRealm)
	assert.True(t, errors.Is(err, errors.ErrCodeMissingClaim))
}

func TestSSICIDValidateUnknownKid(t *testing.T) {
	host := newCIDHost(t)
	v := newTestCIDValidator(t)

	host.kid = "key-9" // token names a kid the document does not publish
	token := host.token(t, nil)
	host.kid = "key-1"

	_, err := v.Validate(context.Background(), token, testRealm)
	assert.True(t, errors.Is(err, errors.ErrCodeNoVerificationMethod))
}

func TestSSICIDValidateAlgKeyMismatch(t *testing.T) {
	host := newCIDHost(t)
	v := newTestCIDValidator(t)

	// Declare RS256 against the document's Ed25519 key. The signature is
	// irrelevant; the mismatch fails first.
	now := time.Now()
	header := segment(`{"alg":"RS256","typ":"JWT","kid":"key-1"}`)
	payload := segment(`{"sub":"` + host.id() + `","iss":"` + host.id() + `","client_id":"` + host.id() +
		`","aud":"` + testRealm + `","iat":` + jsonInt(now.Unix()) + `,"exp":` + jsonInt(now.Add(300*time.Second).Unix()) +
		`,"jti":"x"}`)
	token := header + "." + payload + ".c2ln"

	_, err := v.Validate(context.Background(), token, testRealm)
	assert.True(t, errors.Is(err, errors.ErrCodeAlgKeyMismatch))
}

func TestSSICIDValidateTamperedSignature(t *testing.T) {
	host := newCIDHost(t)
	v := newTestCIDValidator(t)

	// Re-sign the same claims with a different Ed25519 key.
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	now := time.Now()
	token := signTestToken(t, jwt.SigningMethodEdDSA, otherPriv, host.kid, jwt.MapClaims{
		"sub":       host.id(),
		"iss":       host.id(),
		"client_id": host.id(),
		"aud":       testRealm,
		"iat":       now.Unix(),
		"exp":       now.Add(300 * time.Second).Unix(),
		"jti":       "self-issued-3",
	})

	_, err = v.Validate(context.Background(), token, testRealm)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidSignature))
}
