// Package config loads the watchdog client configuration from a TOML file,
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultPath is the configuration file read when no path is given.
	DefaultPath = "config.toml"

	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. WATCHDOG_SERVER_TOKEN overrides server_token.
	EnvPrefix = "WATCHDOG_"

	// DefaultKeepAlive applies when keepalive is unset or not positive.
	DefaultKeepAlive = 120 * time.Second

	filePerm = 0o600
)

var (
	// ErrNotFound reports a missing configuration file. A default file has
	// been written in its place when this is returned.
	ErrNotFound = errors.New("config file not found")

	// ErrMissingCredentials reports an empty url or server_token.
	ErrMissingCredentials = errors.New("url and server_token are required")
)

// Config is the client configuration.
type Config struct {
	URL   string `koanf:"url"`
	Token string `koanf:"server_token"`

	// KeepAliveSeconds is the ping interval in seconds. Zero means default.
	KeepAliveSeconds int `koanf:"keepalive"`

	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// KeepAlive returns the ping interval, falling back to DefaultKeepAlive.
func (c *Config) KeepAlive() time.Duration {
	if c.KeepAliveSeconds <= 0 {
		return DefaultKeepAlive
	}
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// Validate reports ErrMissingCredentials when url or server_token is empty.
func (c *Config) Validate() error {
	if c.URL == "" || c.Token == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Level maps LogLevel to a slog level. Unknown values map to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads the configuration at path and applies WATCHDOG_* overrides.
//
// If the file does not exist, a default file with empty credentials is written
// at path and an error wrapping both ErrNotFound and fs.ErrNotExist is
// returned. The caller still has to treat the run as failed.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to access config file %s: %w", path, err)
		}
		if saveErr := (&Config{}).Save(path); saveErr != nil {
			return nil, fmt.Errorf("failed to write default config %s: %w", path, saveErr)
		}
		logger.Warn("config file not found, a default config file has been generated", "path", path)
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes the url and server_token fields as TOML. Optional fields are
// written only when set.
func (c *Config) Save(path string) error {
	values := map[string]any{
		"url":          c.URL,
		"server_token": c.Token,
	}
	if c.KeepAliveSeconds > 0 {
		values["keepalive"] = c.KeepAliveSeconds
	}
	if c.LogLevel != "" {
		values["log_level"] = c.LogLevel
	}
	if c.MetricsAddr != "" {
		values["metrics_addr"] = c.MetricsAddr
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return fmt.Errorf("failed to load values: %w", err)
	}
	data, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
