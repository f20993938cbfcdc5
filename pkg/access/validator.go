// Package access validates issued access tokens on the resource server. The
// checks run in a fixed order and any failure short-circuits; marking the jti
// used is the last effectful step and the serialisation point between
// concurrent requests.
package access

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/jwks"
	"github.com/jeswr/lws-go/pkg/replay"
	"github.com/jeswr/lws-go/pkg/token"
	"github.com/jeswr/lws-go/pkg/uri"
)

// ValidatedRequest is handed to the storage collaborator after a token
// passes every check.
type ValidatedRequest struct {
	PrincipalSubject string
	ClientID         string
	Action           Action
	ResourcePath     string
}

// Validator verifies access tokens against the authorization server realm.
type Validator struct {
	jwks     *jwks.Client
	jtiStore replay.Store
	// asRealm is the issuer every valid token must carry, verbatim.
	asRealm string
	skew    time.Duration
	now     func() time.Time
}

// NewValidator creates the resource server's access-token validator.
func NewValidator(jwksClient *jwks.Client, jtiStore replay.Store, asRealm string, skew time.Duration) *Validator {
	return &Validator{
		jwks:     jwksClient,
		jtiStore: jtiStore,
		asRealm:  asRealm,
		skew:     skew,
		now:      time.Now,
	}
}

// accessPayload mirrors the access-token claim set with pointer temporal
// fields so absent claims are distinguishable from zero values.
type accessPayload struct {
	Sub      string   `json:"sub"`
	Iss      string   `json:"iss"`
	ClientID string   `json:"client_id"`
	Aud      string   `json:"aud"`
	Iat      *float64 `json:"iat"`
	Exp      *float64 `json:"exp"`
	Jti      string   `json:"jti"`
}

// Validate runs the ordered check sequence against the token presented for
// an HTTP method on a resource URI.
func (v *Validator) Validate(ctx context.Context, tokenString, method, resource string) (*ValidatedRequest, error) {
	// Step 1: parse.
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, errors.New(errors.ErrCodeInvalidToken, "token is not three base64url segments")
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidToken, "token header is not base64url")
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidToken, "token header is not valid JSON")
	}
	if strings.EqualFold(strings.TrimSpace(header.Alg), "none") || header.Alg == "" {
		return nil, errors.New(errors.ErrCodeDisallowedAlg, "alg none is not accepted")
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidToken, "token payload is not base64url")
	}
	var claims accessPayload
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidToken, "token payload is not valid JSON")
	}

	// Step 2: verify the signature with the realm's published keys.
	set, err := v.jwks.ForIssuer(ctx, v.asRealm)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "cannot resolve authorization server keys")
	}
	key, err := jwks.KeyByKid(set, header.Kid)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidSignature, "no key matches the token")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{header.Alg}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidSignature, "signature verification failed")
	}

	// Step 3: required claims.
	switch {
	case claims.Sub == "":
		return nil, errors.New(errors.ErrCodeMissingClaim, "sub claim is required")
	case claims.Iss == "":
		return nil, errors.New(errors.ErrCodeMissingClaim, "iss claim is required")
	case claims.Aud == "":
		return nil, errors.New(errors.ErrCodeMissingClaim, "aud claim is required")
	case claims.Exp == nil:
		return nil, errors.New(errors.ErrCodeMissingClaim, "exp claim is required")
	case claims.Iat == nil:
		return nil, errors.New(errors.ErrCodeMissingClaim, "iat claim is required")
	case claims.Jti == "":
		return nil, errors.New(errors.ErrCodeMissingClaim, "jti claim is required")
	}

	// Step 4: issuer.
	if claims.Iss != v.asRealm {
		return nil, errors.New(errors.ErrCodeInvalidIssuer, "iss does not match the authorization server realm")
	}

	// Step 5: lifetime cap, re-enforced independently of issuance.
	iat := int64(*claims.Iat)
	exp := int64(*claims.Exp)
	if exp-iat > token.MaxLifetimeSeconds {
		return nil, errors.Newf(errors.ErrCodeLifetimeExceeded, "token lifetime exceeds %d seconds", token.MaxLifetimeSeconds)
	}

	// Step 6: temporal bounds within the skew tolerance.
	now := v.now()
	if time.Unix(exp, 0).Before(now.Add(-v.skew)) {
		return nil, errors.New(errors.ErrCodeTokenExpired, "token has expired")
	}
	if time.Unix(iat, 0).After(now.Add(v.skew)) {
		return nil, errors.New(errors.ErrCodeInvalidIat, "token issued in the future")
	}

	// Step 7: audience containment.
	contained, err := uri.Contains(claims.Aud, resource)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidAudience, "audience comparison failed")
	}
	if !contained {
		return nil, errors.New(errors.ErrCodeInvalidAudience, "resource is outside the token audience")
	}

	// Step 8: single use. The set-if-absent write decides races; a false
	// return means another request consumed the jti first.
	used, err := v.jtiStore.IsUsed(ctx, claims.Jti)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "jti store unavailable")
	}
	if used {
		return nil, errors.New(errors.ErrCodeTokenReplay, "token has already been used")
	}
	marked, err := v.jtiStore.MarkUsed(ctx, claims.Jti, time.Unix(exp, 0).Sub(now))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "jti store unavailable")
	}
	if !marked {
		return nil, errors.New(errors.ErrCodeTokenReplay, "token has already been used")
	}

	// Step 9: action mapping. Policy beyond audience containment is
	// deliberately absent; a future policy layer slots in here.
	action, ok := ActionForMethod(method)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidRequest, "method %s is not served", method)
	}

	resourceURL, err := uri.Parse(resource)
	if err != nil {
		return nil, err
	}
	return &ValidatedRequest{
		PrincipalSubject: claims.Sub,
		ClientID:         claims.ClientID,
		Action:           action,
		ResourcePath:     resourceURL.Path,
	}, nil
}
