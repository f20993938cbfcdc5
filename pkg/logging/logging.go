// Package logging configures the process-wide zerolog logger shared by the
// lws services and holds the rules for what token material may be logged.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the logging configuration.
type Config struct {
	// Level is a zerolog level name (trace, debug, info, warn, error).
	Level string `json:"level"`
	// Console switches from JSON lines to human-readable console output.
	Console bool `json:"console"`
	// Service is stamped on every line so the three lws processes can share
	// one log stream.
	Service string `json:"service"`
}

// Configure installs the global logger and returns it.
func Configure(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out = zerolog.New(os.Stderr)
	if cfg.Console {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	service := cfg.Service
	if service == "" {
		service = "lws"
	}
	logger := out.With().Timestamp().Str("service", service).Logger()

	log.Logger = logger
	return logger
}

// ConfigureFromEnv configures logging from LOG_LEVEL and LOG_FORMAT. These
// are the only knobs cmd/lws exposes; everything else is fixed.
func ConfigureFromEnv() zerolog.Logger {
	return Configure(Config{
		Level:   strings.ToLower(os.Getenv("LOG_LEVEL")),
		Console: strings.EqualFold(os.Getenv("LOG_FORMAT"), "console"),
	})
}

// GetLogger returns the global logger tagged with a component name.
func GetLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// TokenPreview returns the first 12 characters of a token string. Full
// tokens must never reach a log line; preview plus jti and sub is the most
// that may be recorded.
func TokenPreview(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12]
}
