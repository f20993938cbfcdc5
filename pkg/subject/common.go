package subject

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jeswr/lws-go/pkg/errors"
)

// rawToken is a subject token after compact-serialisation parsing but before
// any cryptographic processing.
type rawToken struct {
	compact string
	header  tokenHeader
	claims  tokenClaims
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ"`
}

type tokenClaims struct {
	Sub      string   `json:"sub"`
	Iss      string   `json:"iss"`
	ClientID string   `json:"client_id"`
	Azp      string   `json:"azp"`
	Aud      audience `json:"aud"`
	Iat      *float64 `json:"iat"`
	Exp      *float64 `json:"exp"`
	Jti      string   `json:"jti"`
}

// audience accepts the string and array forms of the aud claim.
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*a = audience(list)
	return nil
}

// parseCompact splits and decodes a compact JWT without verifying it. The
// alg=none rejection happens here, on the decoded JSON value, so header
// whitespace, case tricks and member reordering cannot bypass it.
func parseCompact(token string) (*rawToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New(errors.ErrCodeMalformed, "token is not three base64url segments")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformed, "token header is not base64url")
	}
	var header tokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformed, "token header is not valid JSON")
	}
	if strings.EqualFold(strings.TrimSpace(header.Alg), "none") {
		return nil, errors.New(errors.ErrCodeDisallowedAlg, "alg none is not accepted")
	}
	if header.Alg == "" {
		return nil, errors.New(errors.ErrCodeMalformed, "token header declares no alg")
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformed, "token payload is not base64url")
	}
	var claims tokenClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformed, "token payload is not valid JSON")
	}

	return &rawToken{compact: token, header: header, claims: claims}, nil
}

// checkTemporal enforces the required iat and exp claims within the clock
// skew tolerance.
func checkTemporal(claims *tokenClaims, now time.Time, skew time.Duration) error {
	if claims.Exp == nil {
		return errors.New(errors.ErrCodeMissingClaim, "exp claim is required")
	}
	if claims.Iat == nil {
		return errors.New(errors.ErrCodeMissingClaim, "iat claim is required")
	}
	exp := time.Unix(int64(*claims.Exp), 0)
	iat := time.Unix(int64(*claims.Iat), 0)
	if !exp.After(now.Add(-skew)) {
		return errors.New(errors.ErrCodeTokenExpired, "token has expired")
	}
	if iat.After(now.Add(skew)) {
		return errors.New(errors.ErrCodeInvalidIat, "token issued in the future")
	}
	return nil
}

// verifySignature checks the token signature with the resolved key, pinning
// the accepted method to the declared alg.
func verifySignature(compact, alg string, key interface{}) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.Parse(compact, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidSignature, "signature verification failed")
	}
	return nil
}

// checkAlgForKey rejects a declared alg the key cannot have produced.
func checkAlgForKey(alg string, allowed []string) error {
	for _, a := range allowed {
		if a == alg {
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeAlgKeyMismatch, "alg %s is not valid for the resolved key", alg)
}

// allowedAlgsForRawKey maps a materialised crypto key to the JWS algorithms
// it can verify. Used for JWKS keys, which arrive without a domain JWK.
func allowedAlgsForRawKey(key interface{}) []string {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}
	case *ecdsa.PublicKey:
		switch k.Curve.Params().Name {
		case "P-256":
			return []string{"ES256"}
		case "P-384":
			return []string{"ES384"}
		case "P-521":
			return []string{"ES512"}
		}
	case ed25519.PublicKey:
		return []string{"EdDSA"}
	case *secp256k1.PublicKey:
		return []string{"ES256K"}
	}
	return nil
}
