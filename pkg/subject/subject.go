// Package subject validates incoming end-user credentials. One validator per
// authentication suite shares a registry keyed by token-type URI; each emits
// a normalised Principal for the exchange handler.
package subject

import (
	"context"
)

// Token-type URIs dispatched by the registry.
const (
	// TokenTypeIDToken selects the OpenID Connect suite.
	TokenTypeIDToken = "urn:ietf:params:oauth:token-type:id_token"
	// TokenTypeJWT selects a self-issued suite; the subject claim decides
	// between SSI-CID and SSI-DID-Key.
	TokenTypeJWT = "urn:ietf:params:oauth:token-type:jwt"
	// TokenTypeCID and TokenTypeDIDKey are the legacy suite-specific URNs,
	// kept as aliases for older clients.
	TokenTypeCID    = "urn:lws:params:oauth:token-type:cid"
	TokenTypeDIDKey = "urn:lws:params:oauth:token-type:did-key"
	// TokenTypeAccessToken is the only requested_token_type the exchange
	// endpoint issues.
	TokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"
)

// AuthSuite identifies the credential format a principal authenticated with.
type AuthSuite string

const (
	SuiteOpenID    AuthSuite = "openid"
	SuiteSSICID    AuthSuite = "ssi-cid"
	SuiteSSIDIDKey AuthSuite = "ssi-did-key"
)

// Principal is the normalised identity emitted by every validator.
type Principal struct {
	Subject  string
	Issuer   string
	ClientID string
	// AuthSuite records which suite validated the credential.
	AuthSuite AuthSuite
	// SubjectTokenID is the jti of the validated subject token.
	SubjectTokenID string
}

// Validator validates one authentication suite's subject tokens against a
// realm.
type Validator interface {
	// TokenType returns the token-type URI this validator handles.
	TokenType() string
	// Validate verifies the token and returns the principal it authenticates.
	Validate(ctx context.Context, token, realm string) (*Principal, error)
}

// Registry dispatches validators by token-type URI.
type Registry struct {
	validators map[string]Validator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: map[string]Validator{}}
}

// Register adds a validator under its token type. Later registrations win.
func (r *Registry) Register(v Validator) {
	r.validators[v.TokenType()] = v
}

// RegisterAlias adds a validator under an additional token-type URI.
func (r *Registry) RegisterAlias(tokenType string, v Validator) {
	r.validators[tokenType] = v
}

// Validator looks up the validator for a token-type URI.
func (r *Registry) Validator(tokenType string) (Validator, bool) {
	v, ok := r.validators[tokenType]
	return v, ok
}

// TokenTypes lists the registered token-type URIs.
func (r *Registry) TokenTypes() []string {
	types := make([]string, 0, len(r.validators))
	for t := range r.validators {
		types = append(types, t)
	}
	return types
}
