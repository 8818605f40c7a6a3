// Package config handles parley configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for parley.
type Config struct {
	// API is the request/response service.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Live is the push channel.
	Live LiveConfig `yaml:"live" mapstructure:"live"`

	// Auth is the identity provider.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Engine tunes the sync engine.
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// State is the local draft and selection store.
	State StateConfig `yaml:"state" mapstructure:"state"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// APIConfig configures the HTTP client.
type APIConfig struct {
	// BaseURL is the service root, e.g. http://localhost:4000.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds each request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LiveConfig configures the push connection.
type LiveConfig struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string `yaml:"url" mapstructure:"url"`

	// InitialBackoff is the first reconnect delay.
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`

	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// AuthConfig configures the identity provider.
type AuthConfig struct {
	// APIKey is the identity provider's public web API key.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// IdentityURL overrides the account endpoint root.
	IdentityURL string `yaml:"identity_url" mapstructure:"identity_url"`

	// TokenURL overrides the token refresh endpoint root.
	TokenURL string `yaml:"token_url" mapstructure:"token_url"`

	// RefreshSkew refreshes credentials this long before they expire.
	RefreshSkew time.Duration `yaml:"refresh_skew" mapstructure:"refresh_skew"`
}

// EngineConfig tunes the sync engine.
type EngineConfig struct {
	// LocalEcho shows sent messages immediately as pending.
	LocalEcho bool `yaml:"local_echo" mapstructure:"local_echo"`

	// PreviewConcurrency bounds parallel preview fetches after sign-in.
	PreviewConcurrency int `yaml:"preview_concurrency" mapstructure:"preview_concurrency"`
}

// StateConfig locates the local state database.
type StateConfig struct {
	// Path is the SQLite file path.
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The TUI logs here instead of
	// stderr.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "parley")

	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:4000",
			Timeout: 10 * time.Second,
		},
		Live: LiveConfig{
			URL:            "ws://localhost:4000",
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
			DialTimeout:    5 * time.Second,
		},
		Auth: AuthConfig{
			RefreshSkew: 60 * time.Second,
		},
		Engine: EngineConfig{
			LocalEcho:          true,
			PreviewConcurrency: 4,
		},
		State: StateConfig{
			Path: filepath.Join(dataDir, "state.db"),
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		TUI: TUIConfig{
			Theme: "default",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.API.Timeout < 100*time.Millisecond {
		return fmt.Errorf("api.timeout must be at least 100ms")
	}

	if err := validateURL("live.url", c.Live.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Live.InitialBackoff <= 0 {
		return fmt.Errorf("live.initial_backoff must be positive")
	}
	if c.Live.MaxBackoff < c.Live.InitialBackoff {
		return fmt.Errorf("live.max_backoff must be at least live.initial_backoff")
	}
	if c.Live.DialTimeout <= 0 {
		return fmt.Errorf("live.dial_timeout must be positive")
	}

	if c.Auth.RefreshSkew < 0 {
		return fmt.Errorf("auth.refresh_skew must not be negative")
	}
	if c.Auth.IdentityURL != "" {
		if err := validateURL("auth.identity_url", c.Auth.IdentityURL, "http", "https"); err != nil {
			return err
		}
	}
	if c.Auth.TokenURL != "" {
		if err := validateURL("auth.token_url", c.Auth.TokenURL, "http", "https"); err != nil {
			return err
		}
	}

	if c.Engine.PreviewConcurrency < 1 {
		return fmt.Errorf("engine.preview_concurrency must be at least 1")
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return fmt.Errorf("state.path is required")
	}

	switch c.TUI.Theme {
	case "default", "high-contrast":
	default:
		return fmt.Errorf("tui.theme must be one of default, high-contrast")
	}

	return nil
}

// RequireAuth reports a missing identity provider key. Only commands that
// sign in need one.
func (c *Config) RequireAuth() error {
	if strings.TrimSpace(c.Auth.APIKey) == "" {
		return fmt.Errorf("auth.api_key is required (set PARLEY_AUTH_API_KEY or auth.api_key in config.yaml)")
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.State.Path)}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL: %q", key, raw)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%s must use %s: %q", key, strings.Join(schemes, " or "), raw)
}
