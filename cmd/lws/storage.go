package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeswr/lws-go/pkg/access"
	"github.com/jeswr/lws-go/pkg/cache"
	"github.com/jeswr/lws-go/pkg/jwks"
	"github.com/jeswr/lws-go/pkg/logging"
	"github.com/jeswr/lws-go/pkg/middleware"
	"github.com/jeswr/lws-go/pkg/replay"
	"github.com/jeswr/lws-go/pkg/storage"
)

var storageRoot string

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Start the resource server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if storageRoot != "" {
			cfg.StorageRoot = storageRoot
		}

		ctx := context.Background()
		documentCache := cache.New(ctx, cfg.DocumentCacheEndpoint)
		defer documentCache.Close()
		jtiStore := replay.New(ctx, cfg.JTIStoreEndpoint)
		defer jtiStore.Close()

		jwksClient := jwks.NewClient(jwks.ClientOptions{
			Cache:      documentCache,
			DefaultTTL: time.Duration(cfg.CIDDefaultTTLS) * time.Second,
			Timeout:    time.Duration(cfg.CIDFetchTimeoutMS) * time.Millisecond,
		})
		validator := access.NewValidator(jwksClient, jtiStore, cfg.AuthorizationServerURI,
			time.Duration(cfg.ClockSkewToleranceS)*time.Second)

		backend, err := storage.NewFileBackend(cfg.StorageRoot)
		if err != nil {
			return fmt.Errorf("failed to open storage root: %w", err)
		}

		server, err := middleware.NewResourceServer(validator, backend,
			cfg.AuthorizationServerURI, cfg.RealmURI)
		if err != nil {
			return err
		}

		addr := fmt.Sprintf(":%d", cfg.ListenPort)
		logger := logging.GetLogger("storage")
		logger.Info().
			Str("realm", cfg.RealmURI).
			Str("root", cfg.StorageRoot).
			Str("addr", addr).
			Msg("starting resource server")
		return http.ListenAndServe(addr, server.Router())
	},
}

func init() {
	storageCmd.Flags().StringVar(&realmURI, "realm", "", "Storage realm URI (overrides config)")
	storageCmd.Flags().StringVar(&storageRoot, "root", "", "Storage root directory (overrides config)")

	rootCmd.AddCommand(storageCmd)
}

// fileExists reports whether path names an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
