// Package config defines the file configuration shared by the lws services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HardLifetimeCapSeconds is the ceiling on access-token lifetime. Configured
// values above it are clamped, never honoured.
const HardLifetimeCapSeconds = 300

// FileConfig represents the configuration stored in a file
type FileConfig struct {
	// RealmURI is the resource-server realm whose namespace access tokens
	// are bound to.
	RealmURI string `json:"realm_uri"`
	// AuthorizationServerURI is the issuer of access tokens.
	AuthorizationServerURI string `json:"authorization_server_uri"`
	// SigningKeys is a path to a JWKS file, or an inline JWKS object.
	SigningKeys string `json:"signing_keys"`

	AccessTokenMaxLifetimeS uint32 `json:"access_token_max_lifetime_s"`
	ClockSkewToleranceS     uint32 `json:"clock_skew_tolerance_s"`

	CIDHTTPSOnly      bool   `json:"cid_https_only"`
	CIDMaxBytes       uint32 `json:"cid_max_bytes"`
	CIDFetchTimeoutMS uint32 `json:"cid_fetch_timeout_ms"`
	CIDDefaultTTLS    uint32 `json:"cid_default_ttl_s"`
	CIDMinTTLS        uint32 `json:"cid_min_ttl_s"`

	// JTIStoreEndpoint and DocumentCacheEndpoint are redis URIs. Empty means
	// process-local storage only.
	JTIStoreEndpoint      string `json:"jti_store_endpoint,omitempty"`
	DocumentCacheEndpoint string `json:"document_cache_endpoint,omitempty"`

	// StorageRoot is the directory served by the file storage backend.
	StorageRoot string `json:"storage_root"`
	ListenPort  int    `json:"listen_port"`
}

// DefaultFileConfig returns a default file configuration
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		RealmURI:                "http://localhost:3001/storage",
		AuthorizationServerURI:  "http://localhost:8080/realms/lws",
		SigningKeys:             "keys/realm.jwks.json",
		AccessTokenMaxLifetimeS: HardLifetimeCapSeconds,
		ClockSkewToleranceS:     60,
		CIDHTTPSOnly:            true,
		CIDMaxBytes:             10240,
		CIDFetchTimeoutMS:       5000,
		CIDDefaultTTLS:          3600,
		CIDMinTTLS:              60,
		StorageRoot:             "data",
		ListenPort:              8080,
	}
}

// LoadFileConfig loads configuration from a file
func LoadFileConfig(configPath string) (*FileConfig, error) {
	if configPath == "" {
		return DefaultFileConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultFileConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveFileConfig saves configuration to a file
func SaveFileConfig(config *FileConfig, configPath string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AccessTokenLifetime returns the configured lifetime clamped to the hard cap.
func (c *FileConfig) AccessTokenLifetime() uint32 {
	if c.AccessTokenMaxLifetimeS == 0 || c.AccessTokenMaxLifetimeS > HardLifetimeCapSeconds {
		return HardLifetimeCapSeconds
	}
	return c.AccessTokenMaxLifetimeS
}
