// Package exchange implements the authorization server surface: RFC 8693
// token exchange over validated subject tokens, realm metadata, and the
// realm's public key set.
package exchange

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jeswr/lws-go/pkg/logging"
	"github.com/jeswr/lws-go/pkg/subject"
	"github.com/jeswr/lws-go/pkg/token"
)

// GrantTypeTokenExchange is the only grant type the endpoint serves.
const GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

// maxErrorDescription truncates validator failure text before it reaches the
// client.
const maxErrorDescription = 200

// Service handles token exchange for one realm.
type Service struct {
	registry *subject.Registry
	minter   *token.Minter
	realm    string
	logger   zerolog.Logger
}

// NewService creates the exchange service. realm is the authorization server
// URI used as the iss of every issued token.
func NewService(registry *subject.Registry, minter *token.Minter, realm string) *Service {
	return &Service{
		registry: registry,
		minter:   minter,
		realm:    realm,
		logger:   logging.GetLogger("exchange"),
	}
}

// tokenResponse is the successful exchange payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// TokenExchangeHandler handles POST /token.
func (s *Service) TokenExchangeHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.oauthError(w, "invalid_request", "request body is not form-encoded")
		return
	}

	if grantType := r.PostFormValue("grant_type"); grantType != GrantTypeTokenExchange {
		s.oauthError(w, "invalid_request", "grant_type must be "+GrantTypeTokenExchange)
		return
	}
	if requested := r.PostFormValue("requested_token_type"); requested != "" && requested != subject.TokenTypeAccessToken {
		s.oauthError(w, "invalid_request", "Only access_token type is supported")
		return
	}

	subjectToken := r.PostFormValue("subject_token")
	if subjectToken == "" {
		s.oauthError(w, "invalid_request", "subject_token is required")
		return
	}
	subjectTokenType := r.PostFormValue("subject_token_type")
	if subjectTokenType == "" {
		s.oauthError(w, "invalid_request", "subject_token_type is required")
		return
	}

	resource := r.PostFormValue("resource")
	if resource == "" {
		// Older clients send the target as audience.
		resource = r.PostFormValue("audience")
	}
	if resource == "" {
		s.oauthError(w, "invalid_request", "resource is required")
		return
	}
	scope := r.PostFormValue("scope")

	validator, ok := s.registry.Validator(subjectTokenType)
	if !ok {
		s.oauthError(w, "invalid_request", "Unsupported subject_token_type: "+subjectTokenType)
		return
	}

	principal, err := validator.Validate(r.Context(), subjectToken, s.realm)
	if err != nil {
		s.logger.Info().Err(err).
			Str("subject_token_type", subjectTokenType).
			Str("token_preview", logging.TokenPreview(subjectToken)).
			Msg("subject token rejected")
		s.oauthError(w, "invalid_grant", truncate(err.Error(), maxErrorDescription))
		return
	}

	accessToken, claims, err := s.minter.Mint(principal, resource, scope)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to mint access token")
		s.serverError(w, "Failed to generate access token")
		return
	}

	s.logger.Info().
		Str("sub", claims.Subject).
		Str("aud", claims.Audience).
		Str("jti", claims.ID).
		Str("auth_suite", claims.AuthSuite).
		Msg("access token issued")

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   claims.ExpiresAt - claims.IssuedAt,
		Scope:       scope,
	})
}

func (s *Service) oauthError(w http.ResponseWriter, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func (s *Service) serverError(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             "server_error",
		"error_description": description,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
