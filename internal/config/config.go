// Package config provides the configuration structure for the voicechat front end.
package config

import (
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/ilyakaznacheev/cleanenv"
)

// Defaults applied to fields left empty by the config file and the environment.
const (
	DefaultBackendURL        = "http://localhost:8000"
	DefaultAddr              = ":5173"
	DefaultSessionName       = "voicechat"
	DefaultSessionTTLMinutes = 30
	DefaultPreviewMaxHeight  = 192
	DefaultMaxUploadMB       = 10
	DefaultPreviewCacheMB    = 256
	DefaultPreviewStore      = PreviewStoreMemory
	DefaultPreviewBucket     = "VOICECHAT_PREVIEWS"
)

// Preview store kinds.
const (
	PreviewStoreMemory = "memory"
	PreviewStoreNATS   = "nats"
)

// BackendConfig locates the conversational backend.
type BackendConfig struct {
	BaseURL string `toml:"base_url" env:"VOICECHAT_BACKEND_URL"`
	// TimeoutSeconds of zero leaves the transport default in place.
	TimeoutSeconds int `toml:"timeout_seconds" env:"VOICECHAT_BACKEND_TIMEOUT_SECONDS"`
}

// ServerConfig holds the HTTP listener and browser session settings.
type ServerConfig struct {
	Addr              string `toml:"addr" env:"VOICECHAT_ADDR"`
	CookieSecret      string `toml:"cookie_secret" env:"VOICECHAT_COOKIE_SECRET"`
	SessionName       string `toml:"session_name" env:"VOICECHAT_SESSION_NAME"`
	SessionTTLMinutes int    `toml:"session_ttl_minutes" env:"VOICECHAT_SESSION_TTL_MINUTES"`
}

// PreviewConfig controls how face image previews are produced and stored.
type PreviewConfig struct {
	Store       string `toml:"store" env:"VOICECHAT_PREVIEW_STORE"`
	MaxHeight   int    `toml:"max_height"`
	MaxUploadMB int    `toml:"max_upload_mb" env:"VOICECHAT_MAX_UPLOAD_MB"`
	CacheMB     int    `toml:"cache_mb"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables it.
type NATSConfig struct {
	URL           string `toml:"url" env:"VOICECHAT_NATS_URL"`
	PreviewBucket string `toml:"preview_bucket"`
	ChatSubject   string `toml:"chat_subject" env:"VOICECHAT_CHAT_SUBJECT"`
	StatusSubject string `toml:"status_subject"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" env:"VOICECHAT_LOGS_DIR"`
}

// Config is the root configuration structure.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Server  ServerConfig  `toml:"server"`
	Preview PreviewConfig `toml:"preview"`
	NATS    NATSConfig    `toml:"nats"`
	Paths   PathsConfig   `toml:"paths"`
}

// Load loads the configuration from project.toml, then applies environment
// overrides and defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	envErr := ApplyEnv(&cfg)
	if envErr != nil {
		return nil, envErr
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyEnv overrides fields from their VOICECHAT_* environment variables.
func ApplyEnv(cfg *Config) error {
	err := cleanenv.ReadEnv(cfg)
	if err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	return nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendURL
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}

	if c.Server.SessionName == "" {
		c.Server.SessionName = DefaultSessionName
	}

	if c.Server.SessionTTLMinutes <= 0 {
		c.Server.SessionTTLMinutes = DefaultSessionTTLMinutes
	}

	if c.Preview.Store == "" {
		c.Preview.Store = DefaultPreviewStore
	}

	if c.Preview.MaxHeight <= 0 {
		c.Preview.MaxHeight = DefaultPreviewMaxHeight
	}

	if c.Preview.MaxUploadMB <= 0 {
		c.Preview.MaxUploadMB = DefaultMaxUploadMB
	}

	if c.Preview.CacheMB <= 0 {
		c.Preview.CacheMB = DefaultPreviewCacheMB
	}

	if c.NATS.PreviewBucket == "" {
		c.NATS.PreviewBucket = DefaultPreviewBucket
	}
}

// BackendTimeout returns the configured backend timeout; zero means none.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// SessionTTL returns how long an idle browser session is kept.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLMinutes) * time.Minute
}

// MaxUploadBytes returns the largest accepted face image upload.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Preview.MaxUploadMB) << 20
}
