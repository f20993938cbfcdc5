package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeswr/lws-go/pkg/cache"
	"github.com/jeswr/lws-go/pkg/identifier"
	"github.com/jeswr/lws-go/pkg/logging"
	"github.com/jeswr/lws-go/pkg/resolver"
)

var resolverCmd = &cobra.Command{
	Use:   "resolver",
	Short: "Start the identifier resolver service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		documentCache := cache.New(ctx, cfg.DocumentCacheEndpoint)
		defer documentCache.Close()

		cachedResolver := identifier.NewCachedResolver(
			identifier.NewResolver(identifier.ResolverOptions{
				HTTPSOnly: cfg.CIDHTTPSOnly,
				MaxBytes:  int64(cfg.CIDMaxBytes),
				Timeout:   time.Duration(cfg.CIDFetchTimeoutMS) * time.Millisecond,
			}),
			documentCache,
			time.Duration(cfg.CIDDefaultTTLS)*time.Second,
			time.Duration(cfg.CIDMinTTLS)*time.Second,
		)

		service := resolver.NewService(cachedResolver)
		addr := fmt.Sprintf(":%d", cfg.ListenPort)
		logger := logging.GetLogger("resolver")
		logger.Info().Str("addr", addr).Msg("starting resolver service")
		return http.ListenAndServe(addr, service.Router())
	},
}

func init() {
	rootCmd.AddCommand(resolverCmd)
}
