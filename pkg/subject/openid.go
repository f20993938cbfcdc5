package subject

import (
	"context"
	"time"

	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/jwks"
	"github.com/jeswr/lws-go/pkg/uri"
)

// OpenIDValidator validates OpenID Connect ID tokens. The issuer's keys are
// located through OpenID discovery and matched by kid; the kid is optional
// when the issuer publishes a single key.
type OpenIDValidator struct {
	jwks *jwks.Client
	skew time.Duration
	now  func() time.Time
}

// NewOpenIDValidator creates the OpenID suite validator.
func NewOpenIDValidator(jwksClient *jwks.Client, skew time.Duration) *OpenIDValidator {
	return &OpenIDValidator{jwks: jwksClient, skew: skew, now: time.Now}
}

func (v *OpenIDValidator) TokenType() string {
	return TokenTypeIDToken
}

func (v *OpenIDValidator) Validate(ctx context.Context, token, realm string) (*Principal, error) {
	raw, err := parseCompact(token)
	if err != nil {
		return nil, err
	}
	if err := checkTemporal(&raw.claims, v.now(), v.skew); err != nil {
		return nil, err
	}

	claims := &raw.claims
	switch {
	case claims.Sub == "":
		return nil, errors.New(errors.ErrCodeMissingClaim, "sub claim is required")
	case claims.Iss == "":
		return nil, errors.New(errors.ErrCodeMissingClaim, "iss claim is required")
	case claims.Azp == "":
		return nil, errors.New(errors.ErrCodeMissingClaim, "azp claim is required")
	case len(claims.Aud) == 0:
		return nil, errors.New(errors.ErrCodeMissingClaim, "aud claim is required")
	}
	if !uri.ContainsRealm(claims.Aud, realm) {
		return nil, errors.New(errors.ErrCodeInvalidAudience, "aud does not contain the authorization server realm")
	}

	set, err := v.jwks.ForIssuer(ctx, claims.Iss)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeKeyNotFound, "cannot resolve keys for issuer %s", claims.Iss)
	}
	key, err := jwks.KeyByKid(set, raw.header.Kid)
	if err != nil {
		return nil, err
	}
	if err := checkAlgForKey(raw.header.Alg, allowedAlgsForRawKey(key)); err != nil {
		return nil, err
	}
	if err := verifySignature(raw.compact, raw.header.Alg, key); err != nil {
		return nil, err
	}

	return &Principal{
		Subject:        claims.Sub,
		Issuer:         claims.Iss,
		ClientID:       claims.Azp,
		AuthSuite:      SuiteOpenID,
		SubjectTokenID: claims.Jti,
	}, nil
}
