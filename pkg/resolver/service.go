// Package resolver exposes the identifier resolver as an HTTP service for
// collaborators that cannot resolve identifiers themselves.
package resolver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jeswr/lws-go/pkg/errors"
	"github.com/jeswr/lws-go/pkg/identifier"
	"github.com/jeswr/lws-go/pkg/logging"
)

// Service serves resolve, verification-method and resolve-did-key lookups.
type Service struct {
	resolver *identifier.CachedResolver
	logger   zerolog.Logger
}

// NewService creates the resolver service.
func NewService(resolver *identifier.CachedResolver) *Service {
	return &Service{resolver: resolver, logger: logging.GetLogger("resolver")}
}

// Router assembles the resolver's HTTP surface.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(logging.RequestLogger("resolver"))
	r.Use(chimw.Recoverer)

	r.Get("/resolve", s.ResolveHandler)
	r.Get("/verification-method", s.VerificationMethodHandler)
	r.Get("/resolve-did-key", s.ResolveDIDKeyHandler)
	return r
}

// ResolveHandler serves GET /resolve?uri=<id>.
func (s *Service) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("uri")
	if id == "" {
		s.writeError(w, errors.New(errors.ErrCodeInvalidURI, "uri query parameter is required"))
		return
	}
	doc, err := s.resolver.ResolveCID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, doc)
}

// VerificationMethodHandler serves GET /verification-method?uri=<id>&kid=<kid>.
func (s *Service) VerificationMethodHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("uri")
	kid := r.URL.Query().Get("kid")
	if id == "" || kid == "" {
		s.writeError(w, errors.New(errors.ErrCodeInvalidURI, "uri and kid query parameters are required"))
		return
	}
	doc, err := s.resolver.ResolveCID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	vm := doc.VerificationMethodByKid(kid)
	if vm == nil {
		s.writeError(w, errors.Newf(errors.ErrCodeNoVerificationMethod, "no verification method %q in %s", kid, id))
		return
	}
	s.writeJSON(w, vm)
}

// ResolveDIDKeyHandler serves GET /resolve-did-key?did=<did>.
func (s *Service) ResolveDIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	did := r.URL.Query().Get("did")
	if did == "" {
		s.writeError(w, errors.New(errors.ErrCodeInvalidURI, "did query parameter is required"))
		return
	}
	key, err := identifier.ResolveDIDKey(did)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"publicKeyJwk": key})
}

func (s *Service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	s.logger.Info().Err(err).Msg("resolution failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.GetHTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             string(errors.GetErrorCode(err)),
		"error_description": err.Error(),
	})
}
