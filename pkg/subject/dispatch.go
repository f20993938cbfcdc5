package subject

import (
	"context"
	"strings"

	"github.com/jeswr/lws-go/pkg/errors"
)

// JWTDispatchValidator serves the generic jwt token type, under which both
// self-issued suites arrive. The unverified sub claim selects the suite; all
// verification then happens in the delegate.
type JWTDispatchValidator struct {
	cid    Validator
	didKey Validator
}

// NewJWTDispatchValidator wires the generic jwt token type to the two
// self-issued validators.
func NewJWTDispatchValidator(cid, didKey Validator) *JWTDispatchValidator {
	return &JWTDispatchValidator{cid: cid, didKey: didKey}
}

func (v *JWTDispatchValidator) TokenType() string {
	return TokenTypeJWT
}

func (v *JWTDispatchValidator) Validate(ctx context.Context, token, realm string) (*Principal, error) {
	raw, err := parseCompact(token)
	if err != nil {
		return nil, err
	}
	sub := raw.claims.Sub
	switch {
	case strings.HasPrefix(sub, "did:key:"):
		return v.didKey.Validate(ctx, token, realm)
	case strings.HasPrefix(sub, "https://"), strings.HasPrefix(sub, "http://"):
		return v.cid.Validate(ctx, token, realm)
	case sub == "":
		return nil, errors.New(errors.ErrCodeMissingClaim, "sub claim is required")
	}
	return nil, errors.Newf(errors.ErrCodeInvalidIssuer, "subject %q selects no self-issued suite", sub)
}
