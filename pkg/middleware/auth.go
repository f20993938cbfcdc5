// Package middleware implements the resource server: the Bearer challenge,
// access-token enforcement on every request under the protected path, and
// dispatch of validated requests to the storage backend.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jeswr/lws-go/pkg/access"
	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/logging"
	"github.com/jeswr/lws-go/pkg/storage"
	"github.com/jeswr/lws-go/pkg/uri"
)

// ContextKey is the key used to store the validated request in the context
type ContextKey string

// ValidatedRequestContextKey is the key used to store the validated request
// in the context
const ValidatedRequestContextKey ContextKey = "lws_validated_request"

// ResourceServer guards a storage realm with access-token validation.
type ResourceServer struct {
	validator *access.Validator
	backend   storage.Backend
	// asRealm is advertised as as_uri in challenges; storageRealm is the
	// realm whose origin anchors resource URIs.
	asRealm      string
	storageRealm string
	realmOrigin  string
	logger       zerolog.Logger
}

// NewResourceServer creates a resource server for the storage realm.
func NewResourceServer(validator *access.Validator, backend storage.Backend, asRealm, storageRealm string) (*ResourceServer, error) {
	realmURL, err := uri.Parse(storageRealm)
	if err != nil {
		return nil, fmt.Errorf("invalid storage realm: %w", err)
	}
	return &ResourceServer{
		validator:    validator,
		backend:      backend,
		asRealm:      asRealm,
		storageRealm: storageRealm,
		realmOrigin:  uri.Origin(realmURL),
		logger:       logging.GetLogger("middleware"),
	}, nil
}

// Router assembles the resource server's HTTP surface.
func (s *ResourceServer) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.RequestLogger("storage"))
	r.Use(chimw.Recoverer)

	r.Get("/.well-known/lws-storage-server", s.WellKnownHandler)
	r.Handle("/*", s.Protect(http.HandlerFunc(s.serveStorage)))
	return r
}

// WellKnownHandler serves discovery metadata. The challenge header rides
// along so clients learn the authorization server without a failed request.
func (s *ResourceServer) WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", s.challengeValue(""))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"as_uri": s.asRealm,
		"realm":  s.storageRealm,
	})
}

// Protect wraps a handler with Bearer extraction and access-token
// validation. Validated requests carry an access.ValidatedRequest in their
// context.
func (s *ResourceServer) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.challenge(w, "")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			s.challenge(w, "invalid_token")
			return
		}
		tokenString := parts[1]

		resource := s.realmOrigin + r.URL.Path
		validated, err := s.validator.Validate(r.Context(), tokenString, r.Method, resource)
		if err != nil {
			s.logger.Info().
				Str("error_code", string(errors.GetErrorCode(err))).
				Str("token_preview", logging.TokenPreview(tokenString)).
				Str("resource", resource).
				Msg("access token rejected")
			s.challenge(w, challengeError(err))
			return
		}

		ctx := context.WithValue(r.Context(), ValidatedRequestContextKey, validated)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetValidatedRequest retrieves the validated request from the context.
func GetValidatedRequest(ctx context.Context) (*access.ValidatedRequest, bool) {
	validated, ok := ctx.Value(ValidatedRequestContextKey).(*access.ValidatedRequest)
	return validated, ok
}

// challengeValue renders the WWW-Authenticate header.
func (s *ResourceServer) challengeValue(errCode string) string {
	v := fmt.Sprintf("Bearer as_uri=%q, realm=%q", s.asRealm, s.storageRealm)
	if errCode != "" {
		v += fmt.Sprintf(", error=%q", errCode)
	}
	return v
}

func (s *ResourceServer) challenge(w http.ResponseWriter, errCode string) {
	w.Header().Set("WWW-Authenticate", s.challengeValue(errCode))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	body := map[string]string{}
	if errCode != "" {
		body["error"] = errCode
	}
	_ = json.NewEncoder(w).Encode(body)
}

// challengeError maps a validation failure to the error attribute of the
// challenge.
func challengeError(err error) string {
	code := errors.GetErrorCode(err)
	switch code {
	case errors.ErrCodeMalformed, errors.ErrCodeDisallowedAlg, errors.ErrCodeInvalidToken,
		errors.ErrCodeKeyNotFound, errors.ErrCodeServiceUnavailable:
		return "invalid_token"
	default:
		return strings.ToLower(string(code))
	}
}
