package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jeswr/lws-go/pkg/keys"
	"github.com/jeswr/lws-go/pkg/subject"
)

// Minter signs access tokens with the realm's current signing key. It is
// stateless given a realm and key; concurrent mints never collide on jti
// because each draws a fresh UUIDv4.
type Minter struct {
	keyManager *keys.KeyManager
	realm      string
	lifetime   time.Duration
	now        func() time.Time
}

// NewMinter creates a Minter for the authorization server realm. The
// lifetime is clamped to the hard cap.
func NewMinter(keyManager *keys.KeyManager, realm string, lifetime time.Duration) *Minter {
	if lifetime <= 0 || lifetime > MaxLifetimeSeconds*time.Second {
		lifetime = MaxLifetimeSeconds * time.Second
	}
	return &Minter{keyManager: keyManager, realm: realm, lifetime: lifetime, now: time.Now}
}

// Lifetime returns the effective token lifetime.
func (m *Minter) Lifetime() time.Duration {
	return m.lifetime
}

// Mint issues an access token binding the principal to the resource.
func (m *Minter) Mint(principal *subject.Principal, resource, scope string) (string, *AccessClaims, error) {
	privateKey, err := m.keyManager.SigningKey()
	if err != nil {
		return "", nil, fmt.Errorf("failed to get signing key: %w", err)
	}

	now := m.now()
	claims := &AccessClaims{
		Issuer:         m.realm,
		Subject:        principal.Subject,
		ClientID:       principal.ClientID,
		Audience:       resource,
		IssuedAt:       now.Unix(),
		ExpiresAt:      now.Add(m.lifetime).Unix(),
		ID:             uuid.NewString(),
		AuthSuite:      string(principal.AuthSuite),
		SubjectTokenID: principal.SubjectTokenID,
		Scope:          scope,
	}

	signingMethod := jwt.GetSigningMethod(m.keyManager.SigningAlg())
	if signingMethod == nil {
		return "", nil, fmt.Errorf("unknown signing algorithm %q", m.keyManager.SigningAlg())
	}

	tok := jwt.NewWithClaims(signingMethod, claims)
	if kid := m.keyManager.KeyID(); kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(privateKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

func unixTime(v int64) time.Time {
	return time.Unix(v, 0)
}
