// internal/config/config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvLogLevel, EnvFilesRoot, EnvMetricsAddr} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()

	assert.Equal(t, "mcpserve", cfg.Server.Name)
	assert.Equal(t, 50, cfg.Server.PageSize)
	assert.True(t, cfg.Server.Announce)
	assert.Equal(t, 1024*1024, cfg.Transport.MaxMessageSize)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  name: "Test Server"
  instructions: "Use echo."
  page_size: 2
  tool_timeout: 3s
  announce: false
rate_limit:
  enabled: true
  requests_per_second: 1.5
logging:
  level: debug
files:
  root: /srv/data
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Test Server", cfg.Server.Name)
	assert.Equal(t, "0.1.0", cfg.Server.Version, "unset keys keep defaults")
	assert.Equal(t, "Use echo.", cfg.Server.Instructions)
	assert.Equal(t, 2, cfg.Server.PageSize)
	assert.Equal(t, 3*time.Second, cfg.Server.ToolTimeout)
	assert.False(t, cfg.Server.Announce)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.InDelta(t, 1.5, cfg.RateLimit.RequestsPerSecond, 1e-9)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/srv/data", cfg.Files.Root)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Errors(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\nfiles:\n  root: /a\n"), 0o600))

	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvFilesRoot, "/b")
	t.Setenv(EnvMetricsAddr, ":9999")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "/b", cfg.Files.Root)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Server.Name = " " }},
		{"zero page size", func(c *Config) { c.Server.PageSize = 0 }},
		{"negative timeout", func(c *Config) { c.Server.ToolTimeout = -time.Second }},
		{"zero message size", func(c *Config) { c.Transport.MaxMessageSize = 0 }},
		{"negative rate", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.RequestsPerSecond = -1 }},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFilesRootExpandsHome(t *testing.T) {
	clearEnv(t)
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Files.Root = "~/data"
	root, err := cfg.FilesRoot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), root)
}
