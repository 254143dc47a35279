// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCPort       string // empty disables the health probe server
	FrontendURL    string
	StoreDriver    string
	DBPath         string
	SessionTTL     time.Duration
	ReaperInterval time.Duration
	EventQueueSize int
	MaxReruns      int
	HistorySize    int
	CacheTTL       time.Duration
	ManifestPath   string
	Manifest       *Manifest
}

// Load reads configuration from environment variables and the page manifest.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "9090"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		StoreDriver:    getEnv("STORE_DRIVER", "sqlite"),
		DBPath:         getEnv("DB_PATH", "./data/pagelab.db"),
		SessionTTL:     getEnvDuration("SESSION_TTL", 30*time.Minute),
		ReaperInterval: getEnvDuration("REAPER_INTERVAL", time.Minute),
		EventQueueSize: getEnvInt("EVENT_QUEUE_SIZE", 32),
		MaxReruns:      getEnvInt("MAX_RERUNS", 16),
		HistorySize:    getEnvInt("HISTORY_SIZE", 64),
		CacheTTL:       getEnvDuration("CACHE_TTL", 10*time.Minute),
		ManifestPath:   getEnv("APP_MANIFEST", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	manifest, err := LoadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	cfg.Manifest = manifest

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.StoreDriver {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("STORE_DRIVER must be sqlite or bolt, got %q", c.StoreDriver)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.ReaperInterval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL must be > 0")
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be > 0")
	}
	if c.MaxReruns <= 0 {
		return fmt.Errorf("MAX_RERUNS must be > 0")
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("HISTORY_SIZE must be > 0")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the origins accepted by CORS and the WebSocket
// handshake.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
