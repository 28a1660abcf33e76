// Package config loads daemon configuration from environment variables,
// with an optional TOML file overlay for settings operators prefer to pin
// down in a file rather than the environment.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Reconcile ReconcileConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig holds the control API's HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8700"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// StoreConfig holds the session store's configuration.
type StoreConfig struct {
	Path string `envconfig:"STORE_PATH" default:"spaces.db"`
}

// ReconcileConfig holds the reconciliation engine's configuration.
type ReconcileConfig struct {
	ExtensionID    string `envconfig:"EXTENSION_ID" required:"true"`
	CurrentVersion string `envconfig:"EXTENSION_VERSION" default:"dev"`
	DebounceMillis int    `envconfig:"DEBOUNCE_MILLIS" default:"1000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for the control API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds CORS configuration for the control API.
type CORSConfig struct {
	AllowOrigins     []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
	AllowCredentials bool     `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAgeSeconds    int      `envconfig:"CORS_MAX_AGE_SECONDS" default:"43200"`
}

// Load loads configuration from environment variables, then overlays any
// values set in the TOML file at tomlPath if it exists. An absent file is
// not an error — env vars and defaults stand on their own.
func Load(tomlPath string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	if tomlPath != "" {
		if err := overlayTOML(&cfg, tomlPath); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// overlayTOML decodes the file at path onto cfg, leaving fields the file
// doesn't mention untouched. A missing file is silently skipped.
func overlayTOML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Default returns default configuration for an extension id supplied
// directly, without reading the environment (the server tests use it).
func Default(extensionID string) *Config {
	return &Config{
		Server: ServerConfig{Port: "8700", Host: "127.0.0.1"},
		Store:  StoreConfig{Path: "spaces.db"},
		Reconcile: ReconcileConfig{
			ExtensionID:    extensionID,
			CurrentVersion: "dev",
			DebounceMillis: 1000,
		},
		Logging:   LogConfig{Level: "info", Development: false},
		RateLimit: RateLimitConfig{RequestsPerSecond: 50, Burst: 100, Enabled: true},
		CORS:      CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true, MaxAgeSeconds: 43200},
	}
}
