// Package config loads runtime settings from the environment, an optional
// .env file and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/roach88/ledgersync/internal/logger"
)

// Environment variable names.
const (
	EnvDBPath      = "LEDGER_DB_PATH"
	EnvRemoteURL   = "LEDGER_REMOTE_URL"
	EnvHubAddr     = "LEDGER_HUB_ADDR"
	EnvHubBackend  = "LEDGER_HUB_BACKEND"
	EnvHubOrigins  = "LEDGER_HUB_ORIGINS"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogFormat   = "LOG_FORMAT"
	EnvLogOutput   = "LOG_OUTPUT"
	EnvLogTimeFmt  = "LOG_TIME_FORMAT"
	BackendMemory  = "memory"
	DefaultDBPath  = "ledger.db"
	DefaultHubAddr = ":8080"
)

// Config holds all runtime configuration.
type Config struct {
	// DBPath is the SQLite file holding the local ledger.
	DBPath string `mapstructure:"LEDGER_DB_PATH"`
	// RemoteURL selects the shared store. Empty means offline.
	RemoteURL string `mapstructure:"LEDGER_REMOTE_URL"`

	HubAddr    string `mapstructure:"LEDGER_HUB_ADDR"`
	HubBackend string `mapstructure:"LEDGER_HUB_BACKEND"`
	HubOrigins string `mapstructure:"LEDGER_HUB_ORIGINS"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFormat     string `mapstructure:"LOG_FORMAT"`
	LogOutput     string `mapstructure:"LOG_OUTPUT"`
	LogTimeFormat string `mapstructure:"LOG_TIME_FORMAT"`
}

// Options controls where Load looks.
type Options struct {
	// EnvFiles are loaded into the process environment first. Missing
	// files are skipped. Defaults to ".env".
	EnvFiles []string
	// Overrides win over every other source. Keys are environment names.
	Overrides map[string]string
}

// Load reads configuration: overrides, then environment (including .env
// files), then defaults.
func Load(opts Options) (*Config, error) {
	files := opts.EnvFiles
	if files == nil {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	defaults := logger.DefaultConfig()
	v.SetDefault(EnvDBPath, DefaultDBPath)
	v.SetDefault(EnvRemoteURL, "")
	v.SetDefault(EnvHubAddr, DefaultHubAddr)
	v.SetDefault(EnvHubBackend, BackendMemory)
	v.SetDefault(EnvHubOrigins, "")
	v.SetDefault(EnvLogLevel, defaults.Level)
	v.SetDefault(EnvLogFormat, defaults.Format)
	v.SetDefault(EnvLogOutput, defaults.Output)
	v.SetDefault(EnvLogTimeFmt, defaults.TimeFormat)
	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%s is required", EnvDBPath)
	}
	if c.RemoteURL != "" {
		if _, err := RemoteScheme(c.RemoteURL); err != nil {
			return fmt.Errorf("%s: %w", EnvRemoteURL, err)
		}
	}
	if c.HubBackend != BackendMemory {
		scheme, err := RemoteScheme(c.HubBackend)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHubBackend, err)
		}
		if scheme == "http" {
			return fmt.Errorf("%s: a hub cannot be backed by another hub", EnvHubBackend)
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("%s must be json or console, got %q", EnvLogFormat, c.LogFormat)
	}
	return nil
}

// RemoteScheme classifies a store URL as "http", "redis" or "postgres".
func RemoteScheme(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return "http", nil
	case "redis", "rediss":
		return "redis", nil
	case "postgres", "postgresql":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

// Log returns the logging settings.
func (c *Config) Log() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// Origins splits HubOrigins on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.HubOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
