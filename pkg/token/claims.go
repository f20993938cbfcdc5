// Package token defines the LWS access-token claim set and its minting. An
// access token binds a validated principal to a single resource audience for
// at most five minutes.
package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// MaxLifetimeSeconds is the hard ceiling on exp - iat, enforced at issuance
// and re-enforced at validation.
const MaxLifetimeSeconds = 300

// AccessClaims is the claim set of an issued access token. The audience is a
// single string URI; subject tokens may carry array audiences, access tokens
// never do.
type AccessClaims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	ClientID  string `json:"client_id"`
	Audience  string `json:"aud"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	ID        string `json:"jti"`

	// AuthSuite and SubjectTokenID link the access token back to the
	// credential it was exchanged from.
	AuthSuite      string `json:"auth_suite"`
	SubjectTokenID string `json:"subject_token_id,omitempty"`
	Scope          string `json:"scope,omitempty"`
}

var _ jwt.Claims = (*AccessClaims)(nil)

func (c *AccessClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(unixTime(c.ExpiresAt)), nil
}

func (c *AccessClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(unixTime(c.IssuedAt)), nil
}

func (c *AccessClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c *AccessClaims) GetIssuer() (string, error) {
	return c.Issuer, nil
}

func (c *AccessClaims) GetSubject() (string, error) {
	return c.Subject, nil
}

func (c *AccessClaims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}
