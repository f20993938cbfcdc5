package exchange

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jeswr/lws-go/pkg/keys"
	"github.com/jeswr/lws-go/pkg/logging"
)

// metadata is the realm's discovery document.
type metadata struct {
	Issuer                     string   `json:"issuer"`
	TokenEndpoint              string   `json:"token_endpoint"`
	JWKSURI                    string   `json:"jwks_uri"`
	GrantTypesSupported        []string `json:"grant_types_supported"`
	SubjectTokenTypesSupported []string `json:"subject_token_types_supported"`
}

// MetadataHandler serves GET /.well-known/lws-configuration.
func (s *Service) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	types := s.registry.TokenTypes()
	sort.Strings(types)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metadata{
		Issuer:                     s.realm,
		TokenEndpoint:              s.realm + "/token",
		JWKSURI:                    s.realm + "/jwks",
		GrantTypesSupported:        []string{GrantTypeTokenExchange},
		SubjectTokenTypesSupported: types,
	})
}

// JWKSHandler serves the realm's public signing keys.
func JWKSHandler(keyManager *keys.KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keySet, err := keyManager.PublicJWKS()
		if err != nil {
			http.Error(w, "Failed to get public key", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(keySet); err != nil {
			http.Error(w, "Failed to encode JWKS", http.StatusInternalServerError)
		}
	}
}

// Router assembles the authorization server's HTTP surface.
func (s *Service) Router(keyManager *keys.KeyManager) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger("exchange"))
	r.Use(middleware.Recoverer)

	r.Post("/token", s.TokenExchangeHandler)
	r.Get("/jwks", JWKSHandler(keyManager))
	r.Get("/.well-known/lws-configuration", s.MetadataHandler)
	// OpenID-style discovery for access-token validators that locate the
	// realm's keys the same way they locate an external issuer's.
	r.Get("/.well-known/openid-configuration", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   s.realm,
			"jwks_uri": s.realm + "/jwks",
		})
	})
	return r
}
