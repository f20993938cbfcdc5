package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeswr/lws-go/pkg/cache"
	"github.com/jeswr/lws-go/pkg/exchange"
	"github.com/jeswr/lws-go/pkg/identifier"
	"github.com/jeswr/lws-go/pkg/jwks"
	"github.com/jeswr/lws-go/pkg/keys"
	"github.com/jeswr/lws-go/pkg/logging"
	"github.com/jeswr/lws-go/pkg/subject"
	"github.com/jeswr/lws-go/pkg/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Key handling mirrors generate-on-first-run: --key-file wins, then the
		// configured signing_keys (an existing JWKS file or an inline JWKS
		// object); otherwise a fresh pair is written to the signing_keys path,
		// or to realm.jwks.json under --key-dir when none is configured.
		keyManager := keys.NewKeyManager()
		if keyFile != "" {
			if err := keyManager.LoadSigningKeys(keyFile); err != nil {
				return fmt.Errorf("failed to load signing keys: %w", err)
			}
		} else if cfg.SigningKeys != "" && (fileExists(cfg.SigningKeys) || strings.HasPrefix(strings.TrimSpace(cfg.SigningKeys), "{")) {
			if err := keyManager.LoadSigningKeys(cfg.SigningKeys); err != nil {
				return fmt.Errorf("failed to load signing keys: %w", err)
			}
		} else {
			if err := keyManager.GenerateRSAKeyPair(); err != nil {
				return fmt.Errorf("failed to generate key pair: %w", err)
			}
			jwksPath := cfg.SigningKeys
			if jwksPath == "" {
				jwksPath = filepath.Join(keyDir, "realm.jwks.json")
			}
			if err := keyManager.SaveJWKS(jwksPath); err != nil {
				return fmt.Errorf("failed to save signing keys: %w", err)
			}
			fmt.Printf("Generated new signing keys: %s\n", jwksPath)
		}

		ctx := context.Background()
		documentCache := cache.New(ctx, cfg.DocumentCacheEndpoint)
		defer documentCache.Close()

		resolver := identifier.NewCachedResolver(
			identifier.NewResolver(identifier.ResolverOptions{
				HTTPSOnly: cfg.CIDHTTPSOnly,
				MaxBytes:  int64(cfg.CIDMaxBytes),
				Timeout:   time.Duration(cfg.CIDFetchTimeoutMS) * time.Millisecond,
			}),
			documentCache,
			time.Duration(cfg.CIDDefaultTTLS)*time.Second,
			time.Duration(cfg.CIDMinTTLS)*time.Second,
		)
		jwksClient := jwks.NewClient(jwks.ClientOptions{
			Cache:      documentCache,
			DefaultTTL: time.Duration(cfg.CIDDefaultTTLS) * time.Second,
			Timeout:    time.Duration(cfg.CIDFetchTimeoutMS) * time.Millisecond,
		})

		skew := time.Duration(cfg.ClockSkewToleranceS) * time.Second
		cidValidator := subject.NewSSICIDValidator(resolver, skew)
		didKeyValidator := subject.NewSSIDIDKeyValidator(skew)

		registry := subject.NewRegistry()
		registry.Register(subject.NewOpenIDValidator(jwksClient, skew))
		registry.Register(cidValidator)
		registry.Register(didKeyValidator)
		registry.Register(subject.NewJWTDispatchValidator(cidValidator, didKeyValidator))

		minter := token.NewMinter(keyManager, cfg.AuthorizationServerURI,
			time.Duration(cfg.AccessTokenLifetime())*time.Second)
		service := exchange.NewService(registry, minter, cfg.AuthorizationServerURI)

		addr := fmt.Sprintf(":%d", cfg.ListenPort)
		logger := logging.GetLogger("serve")
		logger.Info().
			Str("realm", cfg.AuthorizationServerURI).
			Str("addr", addr).
			Msg("starting authorization server")
		return http.ListenAndServe(addr, service.Router(keyManager))
	},
}

func init() {
	serveCmd.Flags().StringVar(&asURI, "issuer", "", "Authorization server realm URI (overrides config)")
	serveCmd.Flags().StringVar(&keyFile, "key-file", "", "Path to a JWKS file with the realm signing key")
	serveCmd.Flags().StringVar(&keyDir, "key-dir", "keys", "Directory for generated key files")

	rootCmd.AddCommand(serveCmd)
}
