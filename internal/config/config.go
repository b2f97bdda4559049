package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrNoServer is returned by Validate when no server is configured.
var ErrNoServer = errors.New("config: server url, username and password are required")

type Config struct {
	// Server connection (required)
	Server ServerConfig `koanf:"server"`

	// Playback engine tuning
	Playback PlaybackConfig `koanf:"playback"`

	// Last.fm scrobbling (enables scrobbling when configured)
	Lastfm LastfmConfig `koanf:"lastfm"`

	// Log level: "debug", "info", "warn", "error" (default: "info")
	LogLevel string `koanf:"log_level"`
}

// ServerConfig holds the Subsonic server connection settings.
type ServerConfig struct {
	URL      string `koanf:"url"` // e.g., "https://music.example.com"
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// PlaybackConfig holds buffering, retry and normalization settings.
type PlaybackConfig struct {
	GainMode         string `koanf:"gain_mode"`          // "off", "track", "album" (default: "off")
	PrebufferKB      int    `koanf:"prebuffer_kb"`       // kilobytes buffered before playback starts (default: 128)
	BufferKB         int    `koanf:"buffer_kb"`          // ring buffer capacity in kilobytes (default: 2048)
	RetryAttempts    int    `koanf:"retry_attempts"`     // reconnects per track before giving up (default: 3, -1 disables)
	RetryDelayMS     int    `koanf:"retry_delay_ms"`     // base delay, doubled per attempt (default: 500)
	TranscodeFormat  string `koanf:"transcode_format"`   // force server-side transcoding, e.g. "mp3"
	TranscodeMaxKbps int    `koanf:"transcode_max_kbps"` // bitrate cap for transcoded streams
}

// LastfmConfig holds Last.fm scrobbling configuration.
type LastfmConfig struct {
	APIKey     string `koanf:"api_key"`
	APISecret  string `koanf:"api_secret"`
	SessionKey string `koanf:"session_key"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()

	for _, path := range configPaths {
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

	// Normalize server URL (remove trailing slash)
	cfg.Server.URL = strings.TrimSuffix(cfg.Server.URL, "/")

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/subwave/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "subwave", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

// Validate checks that the required server settings are present.
func (c *Config) Validate() error {
	if c.Server.URL == "" || c.Server.Username == "" || c.Server.Password == "" {
		return ErrNoServer
	}
	return nil
}

// HasLastfmConfig returns true if Last.fm scrobbling is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// GetPlaybackConfig returns the playback configuration with defaults applied.
func (c *Config) GetPlaybackConfig() PlaybackConfig {
	cfg := c.Playback

	if cfg.PrebufferKB <= 0 {
		cfg.PrebufferKB = 128
	}
	if cfg.BufferKB <= 0 {
		cfg.BufferKB = 2048
	}
	if cfg.BufferKB < cfg.PrebufferKB {
		cfg.BufferKB = cfg.PrebufferKB
	}
	// Negative values pass through: the controller reads them as a
	// disabled reconnect budget, and mapping them to zero here would
	// make them indistinguishable from "unset".
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelayMS <= 0 {
		cfg.RetryDelayMS = 500
	}

	return cfg
}

// RetryDelay returns the configured base retry delay as a duration.
func (p PlaybackConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMS) * time.Millisecond
}
