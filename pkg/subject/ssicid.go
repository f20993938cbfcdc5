package subject

import (
	"context"
	"strings"
	"time"

	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/identifier"
	"github.com/jeswr/lws-go/pkg/uri"
)

// SSICIDValidator validates self-issued tokens whose subject is a Controlled
// Identifier Document URI. The verification key is taken from the document
// resolved at the subject, selected by the header kid.
type SSICIDValidator struct {
	resolver *identifier.CachedResolver
	skew     time.Duration
	now      func() time.Time
}

// NewSSICIDValidator creates the SSI-CID suite validator.
func NewSSICIDValidator(resolver *identifier.CachedResolver, skew time.Duration) *SSICIDValidator {
	return &SSICIDValidator{resolver: resolver, skew: skew, now: time.Now}
}

func (v *SSICIDValidator) TokenType() string {
	return TokenTypeCID
}

func (v *SSICIDValidator) Validate(ctx context.Context, token, realm string) (*Principal, error) {
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
	if !strings.HasPrefix(claims.Sub, "https://") && !strings.HasPrefix(claims.Sub, "http://") {
		return nil, errors.New(errors.ErrCodeInvalidIssuer, "subject is not a resolvable identifier URI")
	}
	if !uri.ContainsRealm(claims.Aud, realm) {
		return nil, errors.New(errors.ErrCodeInvalidAudience, "aud does not contain the authorization server realm")
	}
	if raw.header.Kid == "" {
		return nil, errors.New(errors.ErrCodeMissingClaim, "kid header parameter is required")
	}

	key, err := v.resolver.VerificationKey(ctx, claims.Sub, raw.header.Kid)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNoVerificationMethod) {
			return nil, err
		}
		return nil, errors.Wrapf(err, errors.ErrCodeKeyNotFound, "cannot resolve identifier %s", claims.Sub)
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
		AuthSuite:      SuiteSSICID,
		SubjectTokenID: claims.Jti,
	}, nil
}

// checkSelfIssued enforces the claim set shared by the self-issued suites:
// sub, iss, client_id, aud and jti present, and sub == iss == client_id.
func checkSelfIssued(claims *tokenClaims) error {
	switch {
	case claims.Sub == "":
		return errors.New(errors.ErrCodeMissingClaim, "sub claim is required")
	case claims.Iss == "":
		return errors.New(errors.ErrCodeMissingClaim, "iss claim is required")
	case claims.ClientID == "":
		return errors.New(errors.ErrCodeMissingClaim, "client_id claim is required")
	case len(claims.Aud) == 0:
		return errors.New(errors.ErrCodeMissingClaim, "aud claim is required")
	case claims.Jti == "":
		return errors.New(errors.ErrCodeMissingClaim, "jti claim is required")
	}
	if claims.Sub != claims.Iss || claims.Sub != claims.ClientID {
		return errors.New(errors.ErrCodeSelfIssuedMismatch, "sub, iss and client_id must be identical for self-issued tokens")
	}
	return nil
}
