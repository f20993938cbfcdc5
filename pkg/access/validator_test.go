package access

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
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
	"github.com/jeswr/lws-go/pkg/jwks"
	"github.com/jeswr/lws-go/pkg/keys"
	"github.com/jeswr/lws-go/pkg/replay"
)

const testResource = "http://localhost:3001/storage"

type accessFixture struct {
	validator  *Validator
	keyManager *keys.KeyManager
	realm      string
	jtiStore   replay.Store
}

// newAccessFixture stands up an authorization server realm publishing its
// keys over OpenID-style discovery, the way the resource server locates them.
func newAccessFixture(t *testing.T) *accessFixture {
	t.Helper()

	keyManager := keys.NewKeyManager()
	require.NoError(t, keyManager.GenerateRSAKeyPair())

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   server.URL,
			"jwks_uri": server.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		set, err := keyManager.PublicJWKS()
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	jtiStore := replay.NewMemory()
	validator := NewValidator(
		jwks.NewClient(jwks.ClientOptions{Cache: cache.NewMemory()}),
		jtiStore, server.URL, 60*time.Second)

	return &accessFixture{
		validator:  validator,
		keyManager: keyManager,
		realm:      server.URL,
		jtiStore:   jtiStore,
	}
}

// accessToken signs a claim set with the realm key; mutate adjusts the
// default happy-path claims.
func (f *accessFixture) accessToken(t *testing.T, mutate func(claims jwt.MapClaims)) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":        f.realm,
		"sub":        "alice",
		"client_id":  "https://client",
		"aud":        testResource,
		"iat":        now.Unix(),
		"exp":        now.Add(300 * time.Second).Unix(),
		"jti":        jtiFor(t),
		"auth_suite": "openid",
	}
	if mutate != nil {
		mutate(claims)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = f.keyManager.KeyID()
	key, err := f.keyManager.SigningKey()
	require.NoError(t, err)
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

var jtiCounter int

func jtiFor(t *testing.T) string {
	jtiCounter++
	return t.Name() + "-" + string(rune('a'+jtiCounter%26)) + time.Now().Format("150405.000000000")
}

func TestValidateHappyPath(t *testing.T) {
	f := newAccessFixture(t)

	validated, err := f.validator.Validate(context.Background(),
		f.accessToken(t, nil), http.MethodGet, testResource+"/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "alice", validated.PrincipalSubject)
	assert.Equal(t, "https://client", validated.ClientID)
	assert.Equal(t, ActionRead, validated.Action)
	assert.Equal(t, "/storage/file.txt", validated.ResourcePath)
}

func TestValidateReplay(t *testing.T) {
	f := newAccessFixture(t)
	token := f.accessToken(t, nil)

	_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource+"/file.txt")
	require.NoError(t, err)

	_, err = f.validator.Validate(context.Background(), token, http.MethodGet, testResource+"/file.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTokenReplay))
}

func TestValidateLifetimeCap(t *testing.T) {
	f := newAccessFixture(t)

	t.Run("over the cap", func(t *testing.T) {
		token := f.accessToken(t, func(claims jwt.MapClaims) {
			now := time.Now()
			claims["iat"] = now.Unix()
			claims["exp"] = now.Add(400 * time.Second).Unix()
		})
		_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
		assert.True(t, errors.Is(err, errors.ErrCodeLifetimeExceeded))
	})

	t.Run("at the cap", func(t *testing.T) {
		token := f.accessToken(t, func(claims jwt.MapClaims) {
			now := time.Now()
			claims["iat"] = now.Unix()
			claims["exp"] = now.Add(300 * time.Second).Unix()
		})
		_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
		assert.NoError(t, err)
	})

	t.Run("cap check precedes expiry check", func(t *testing.T) {
		token := f.accessToken(t, func(claims jwt.MapClaims) {
			claims["iat"] = 0
			claims["exp"] = 400
		})
		_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
		assert.True(t, errors.Is(err, errors.ErrCodeLifetimeExceeded))
	})
}

func TestValidateAudienceContainment(t *testing.T) {
	f := newAccessFixture(t)

	cases := []struct {
		name     string
		resource string
		wantErr  bool
	}{
		{"exact match", testResource, false},
		{"descendant", testResource + "/subfolder/a", false},
		{"other origin", "http://other:3001/storage", true},
		{"sibling", "http://localhost:3001/storage2", true},
		{"path escape", testResource + "/..", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.validator.Validate(context.Background(),
				f.accessToken(t, nil), http.MethodGet, tc.resource)
			if tc.wantErr {
				assert.True(t, errors.Is(err, errors.ErrCodeInvalidAudience))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateClockSkew(t *testing.T) {
	f := newAccessFixture(t)

	t.Run("expired within skew", func(t *testing.T) {
		token := f.accessToken(t, func(claims jwt.MapClaims) {
			now := time.Now()
			claims["iat"] = now.Add(-200 * time.Second).Unix()
			claims["exp"] = now.Add(-30 * time.Second).Unix()
		})
		_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
		assert.NoError(t, err)
	})

	t.Run("expired beyond skew", func(t *testing.T) {
		token := f.accessToken(t, func(claims jwt.MapClaims) {
			now := time.Now()
			claims["iat"] = now.Add(-200 * time.Second).Unix()
			claims["exp"] = now.Add(-90 * time.Second).Unix()
		})
		_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
		assert.True(t, errors.Is(err, errors.ErrCodeTokenExpired))
	})

	t.Run("issued in the future", func(t *testing.T) {
		token := f.accessToken(t, func(claims jwt.MapClaims) {
			now := time.Now()
			claims["iat"] = now.Add(time.Hour).Unix()
			claims["exp"] = now.Add(time.Hour + 300*time.Second).Unix()
		})
		_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidIat))
	})
}

func TestValidateMissingClaims(t *testing.T) {
	f := newAccessFixture(t)

	for _, claim := range []string{"sub", "iss", "aud", "exp", "iat", "jti"} {
		t.Run(claim, func(t *testing.T) {
			token := f.accessToken(t, func(claims jwt.MapClaims) {
				delete(claims, claim)
			})
			_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeMissingClaim))
		})
	}
}

func TestValidateWrongIssuer(t *testing.T) {
	f := newAccessFixture(t)

	token := f.accessToken(t, func(claims jwt.MapClaims) {
		claims["iss"] = "http://rogue-as.example"
	})
	_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidIssuer))
}

func TestValidateMalformedToken(t *testing.T) {
	f := newAccessFixture(t)

	for _, token := range []string{"", "abc", "a.b", "!!!.x.y"} {
		_, err := f.validator.Validate(context.Background(), token, http.MethodGet, testResource)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidToken), token)
	}
}

func TestValidateRejectsAlgNone(t *testing.T) {
	f := newAccessFixture(t)

	// An unsigned token claiming alg none never reaches signature checks.
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": f.realm,
		"sub": "alice",
		"aud": testResource,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(300 * time.Second).Unix(),
		"jti": "none-1",
	})
	unsigned, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = f.validator.Validate(context.Background(), unsigned, http.MethodGet, testResource)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDisallowedAlg))
}

func TestValidateForeignSignature(t *testing.T) {
	f := newAccessFixture(t)

	foreign, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": f.realm,
		"sub": "alice",
		"aud": testResource,
		"iat": now.Unix(),
		"exp": now.Add(300 * time.Second).Unix(),
		"jti": "foreign-1",
	})
	tok.Header["kid"] = f.keyManager.KeyID()
	signed, err := tok.SignedString(foreign)
	require.NoError(t, err)

	_, err = f.validator.Validate(context.Background(), signed, http.MethodGet, testResource)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidSignature))
}

func TestValidateActionMapping(t *testing.T) {
	f := newAccessFixture(t)

	cases := map[string]Action{
		http.MethodGet:     ActionRead,
		http.MethodHead:    ActionRead,
		http.MethodOptions: ActionRead,
		http.MethodPut:     ActionUpdate,
		http.MethodPost:    ActionCreate,
		http.MethodPatch:   ActionAppend,
		http.MethodDelete:  ActionDelete,
	}
	for method, want := range cases {
		t.Run(method, func(t *testing.T) {
			validated, err := f.validator.Validate(context.Background(),
				f.accessToken(t, nil), method, testResource+"/file.txt")
			require.NoError(t, err)
			assert.Equal(t, want, validated.Action)
		})
	}
}
