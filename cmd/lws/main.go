package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeswr/lws-go/pkg/config"
	"github.com/jeswr/lws-go/pkg/logging"
)

var (
	configPath string
	port       int
	realmURI   string
	asURI      string
	keyFile    string
	keyDir     string
)

var rootCmd = &cobra.Command{
	Use:   "lws",
	Short: "LWS - Linked Web Storage reference services",
	Long:  `lws runs the Linked Web Storage authorization server, resource server and identifier resolver.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureFromEnv()
	},
}

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Generate a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return fmt.Errorf("--config path is required")
		}
		cfg := config.DefaultFileConfig()
		if err := config.SaveFileConfig(cfg, configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Generated configuration file at: %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateConfigCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig applies flag overrides on top of the file configuration.
func loadConfig() (*config.FileConfig, error) {
	cfg, err := config.LoadFileConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if port != 0 {
		cfg.ListenPort = port
	}
	if realmURI != "" {
		cfg.RealmURI = realmURI
	}
	if asURI != "" {
		cfg.AuthorizationServerURI = asURI
	}
	return cfg, nil
}
