package subject

import (
	"context"
	"strings"
	"time"

	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/identifier"
	"github.com/jeswr/lws-go/pkg/uri"
)

// SSIDIDKeyValidator validates self-issued tokens whose subject is a did:key
// identifier. The verification key is decoded from the identifier itself, so
// no document resolution happens; a header kid is accepted but not required.
type SSIDIDKeyValidator struct {
	skew time.Duration
	now  func() time.Time
}

// NewSSIDIDKeyValidator creates the SSI-DID-Key suite validator.
func NewSSIDIDKeyValidator(skew time.Duration) *SSIDIDKeyValidator {
	return &SSIDIDKeyValidator{skew: skew, now: time.Now}
}

func (v *SSIDIDKeyValidator) TokenType() string {
	return TokenTypeDIDKey
}

func (v *SSIDIDKeyValidator) Validate(ctx context.Context, token, realm string) (*Principal, error) {
	raw, err := parseCompact(token)
	if err != nil {
		return nil, err
	}
	if err := checkTemporal(&raw.claims, v.now(), v.skew); err != nil {
		return nil, err
	}
	claims := &raw.claims
	if err := checkSelfIssued(claims); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(claims.Sub, "did:key:") {
		return nil, errors.New(errors.ErrCodeInvalidIssuer, "subject is not a did:key identifier")
	}
	if !uri.ContainsRealm(claims.Aud, realm) {
		return nil, errors.New(errors.ErrCodeInvalidAudience, "aud does not contain the authorization server realm")
	}

	key, err := identifier.ResolveDIDKey(claims.Sub)
	if err != nil {
		return nil, err
	}
	if err := checkAlgForKey(raw.header.Alg, key.AllowedAlgs()); err != nil {
		return nil, err
	}
	verifier, err := key.Verifier()
	if err != nil {
		return nil, err
	}
	if err := verifySignature(raw.compact, raw.header.Alg, verifier); err != nil {
		return nil, err
	}

	return &Principal{
		Subject:        claims.Sub,
		Issuer:         claims.Sub,
		ClientID:       claims.Sub,
		AuthSuite:      SuiteSSIDIDKey,
		SubjectTokenID: claims.Jti,
	}, nil
}
