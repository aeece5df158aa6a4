// Package config loads feedsync settings from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the CLI and library need.
type Config struct {
	APIURL     string `yaml:"api_url"`
	RedisAddr  string `yaml:"redis_addr"`
	BadgerPath string `yaml:"badger_path"`
	LogLevel   string `yaml:"log_level"`

	// Retention is how long an entry outlives its last subscriber, as a Go
	// duration string.
	Retention string `yaml:"retention"`
	// RequestTimeout bounds a single API call.
	RequestTimeout string `yaml:"request_timeout"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		APIURL:         "http://localhost:3000",
		RedisAddr:      "localhost:6379",
		BadgerPath:     defaultBadgerPath(),
		LogLevel:       "info",
		Retention:      "0s",
		RequestTimeout: "30s",
	}
}

// DefaultPath is where the config file lives unless --config says otherwise.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "feedsync.yaml"
	}
	return filepath.Join(dir, "feedsync", "config.yaml")
}

func defaultBadgerPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "feedsync", "badger")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FEEDSYNC_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("FEEDSYNC_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	// An explicitly empty path selects Redis-only mode.
	if v, ok := os.LookupEnv("FEEDSYNC_BADGER_PATH"); ok {
		c.BadgerPath = v
	}
	if v := os.Getenv("FEEDSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FEEDSYNC_RETENTION"); v != "" {
		c.Retention = v
	}
}

// GetRetention returns the retention window as a duration.
func (c *Config) GetRetention() time.Duration {
	d, err := time.ParseDuration(c.Retention)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetRequestTimeout returns the per-request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}
