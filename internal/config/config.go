// Package config handles loading, parsing, and validating application configuration.
// It defines the settings structure, provides default values, loads YAML files,
// and applies overrides from environment variables.
// file: internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvLogLevel    = "MCPSERVE_LOG_LEVEL"
	EnvFilesRoot   = "MCPSERVE_FILES_ROOT"
	EnvMetricsAddr = "MCPSERVE_METRICS_ADDR"
)

// ServerConfig contains the identity and dispatch settings of the server.
type ServerConfig struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	Instructions string `yaml:"instructions"`
	// PageSize bounds the number of entries returned by one list call.
	PageSize int `yaml:"page_size"`
	// ToolTimeout bounds a single tool call. Zero disables the timeout.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
	// Announce sends a ready notification before the first read.
	Announce bool `yaml:"announce"`
}

// TransportConfig contains stdio framing settings.
type TransportConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
}

// RateLimitConfig throttles tool calls per tool.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// FilesConfig configures the bundled file tools and resource.
type FilesConfig struct {
	// Root is the directory the file tools are confined to. Supports '~'.
	Root string `yaml:"root"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Files     FilesConfig     `yaml:"files"`
}

// DefaultConfig returns a configuration populated with default values and
// environment overrides.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Name:     "mcpserve",
			Version:  "0.1.0",
			PageSize: 50,
			Announce: true,
		},
		Transport: TransportConfig{
			MaxMessageSize: 1024 * 1024,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		Files: FilesConfig{
			Root: ".",
		},
	}
	applyEnvironmentOverrides(cfg, logging.GetLogger("config_default"))
	return cfg
}

// LoadFromFile loads configuration from a YAML file. Defaults are applied
// first, then the file, then environment overrides.
func LoadFromFile(path string) (*Config, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- path comes from the command line.
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", expanded)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file YAML: %s", expanded)
	}

	applyEnvironmentOverrides(cfg, logging.GetLogger("config_load"))
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Server.Name) == "":
		return errors.New("server.name must not be empty")
	case c.Server.PageSize <= 0:
		return errors.Newf("server.page_size must be positive, got %d", c.Server.PageSize)
	case c.Server.ToolTimeout < 0:
		return errors.Newf("server.tool_timeout must not be negative, got %s", c.Server.ToolTimeout)
	case c.Transport.MaxMessageSize <= 0:
		return errors.Newf("transport.max_message_size must be positive, got %d", c.Transport.MaxMessageSize)
	case c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond < 0:
		return errors.Newf("rate_limit.requests_per_second must not be negative, got %g", c.RateLimit.RequestsPerSecond)
	case c.Metrics.Enabled && c.Metrics.Addr == "":
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Newf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// FilesRoot returns Files.Root with '~' expanded.
func (c *Config) FilesRoot() (string, error) {
	return expandHome(c.Files.Root)
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory to expand path")
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// applyEnvironmentOverrides applies overrides from environment variables,
// which take precedence over files and defaults.
func applyEnvironmentOverrides(cfg *Config, logger logging.Logger) {
	if level := os.Getenv(EnvLogLevel); level != "" {
		logger.Debug("Overriding log level from environment.", "envVar", EnvLogLevel, "value", level)
		cfg.Logging.Level = level
	}
	if root := os.Getenv(EnvFilesRoot); root != "" {
		logger.Debug("Overriding files root from environment.", "envVar", EnvFilesRoot, "value", root)
		cfg.Files.Root = root
	}
	if addr := os.Getenv(EnvMetricsAddr); addr != "" {
		logger.Debug("Overriding metrics address from environment.", "envVar", EnvMetricsAddr, "value", addr)
		cfg.Metrics.Addr = addr
		cfg.Metrics.Enabled = true
	}
}
