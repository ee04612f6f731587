package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/lvaillant/cadenza/internal/paths"
)

type Config struct {
	// UserID identifies the account whose progress and sessions are tracked.
	UserID string `koanf:"user_id"`

	// Resolution settings for reconciling resume positions across sources.
	Resolution ResolutionConfig `koanf:"resolution"`

	// Bridge exposes the coordinator to native player processes.
	Bridge BridgeConfig `koanf:"bridge"`

	// Player settings for the mpv backend.
	Player PlayerConfig `koanf:"player"`

	// Session settings for server playback sessions.
	Session SessionConfig `koanf:"session"`

	// Last.fm scrobbling (enables scrobbling when configured)
	Lastfm LastfmConfig `koanf:"lastfm"`

	// Logging settings
	Logging LoggingConfig `koanf:"logging"`
}

// ResolutionConfig tunes canonical position resolution.
type ResolutionConfig struct {
	MinPlausibleSeconds     float64 `koanf:"min_plausible_seconds"`     // positions below this are ignored (default: 5)
	LargeDiscrepancySeconds float64 `koanf:"large_discrepancy_seconds"` // beyond this, freshest source wins (default: 30)
}

// BridgeConfig holds the native bridge transport configuration.
type BridgeConfig struct {
	Socket string `koanf:"socket"` // unix socket path; empty means runtime dir default
}

// PlayerConfig holds mpv-related configuration.
type PlayerConfig struct {
	Path   string `koanf:"path"`   // mpv binary (default: "mpv")
	Socket string `koanf:"socket"` // IPC socket path; empty means runtime dir default
}

// SessionConfig holds playback session tracking configuration.
type SessionConfig struct {
	UpdateIntervalSeconds int `koanf:"update_interval_seconds"` // progress report cadence (default: 15)
}

// LastfmConfig holds Last.fm scrobbling configuration.
type LastfmConfig struct {
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace..panic (default: "info")
	Format string `koanf:"format"` // "text" or "json" (default: "text")
	Stderr bool   `koanf:"stderr"` // mirror to stderr in addition to the log file
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range paths.ConfigFiles() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Expand ~ in socket and binary paths
	cfg.Bridge.Socket = expandPath(cfg.Bridge.Socket)
	cfg.Player.Socket = expandPath(cfg.Player.Socket)
	cfg.Player.Path = expandPath(cfg.Player.Path)

	if cfg.UserID != "" {
		cfg.UserID = strings.TrimSpace(cfg.UserID)
	}

	return cfg, nil
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasLastfmConfig returns true if Last.fm scrobbling is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// GetResolutionConfig returns the resolution configuration with defaults applied.
func (c *Config) GetResolutionConfig() ResolutionConfig {
	cfg := c.Resolution

	if cfg.MinPlausibleSeconds <= 0 {
		cfg.MinPlausibleSeconds = 5
	}
	if cfg.LargeDiscrepancySeconds <= 0 {
		cfg.LargeDiscrepancySeconds = 30
	}

	return cfg
}

// GetPlayerConfig returns the player configuration with defaults applied.
func (c *Config) GetPlayerConfig() PlayerConfig {
	cfg := c.Player

	if cfg.Path == "" {
		cfg.Path = "mpv"
	}
	if cfg.Socket == "" {
		cfg.Socket = paths.PlayerSocket()
	}

	return cfg
}

// GetBridgeConfig returns the bridge configuration with defaults applied.
func (c *Config) GetBridgeConfig() BridgeConfig {
	cfg := c.Bridge

	if cfg.Socket == "" {
		cfg.Socket = paths.BridgeSocket()
	}

	return cfg
}

// GetSessionConfig returns the session configuration with defaults applied.
func (c *Config) GetSessionConfig() SessionConfig {
	cfg := c.Session

	if cfg.UpdateIntervalSeconds <= 0 {
		cfg.UpdateIntervalSeconds = 15
	}

	return cfg
}

// UpdateInterval returns the session progress cadence as a duration.
func (c SessionConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSeconds) * time.Second
}
