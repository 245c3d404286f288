package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.MaxTries)
	assert.False(t, cfg.RecoverDevices)
	assert.Equal(t, 30*time.Second, cfg.JoinTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.History.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_MergesWithDefaults(t *testing.T) {
	path := writeConfig(t, `
max_tries: 5
join_timeout: 10s
log_level: debug
devices:
  - SERIAL1
  - SERIAL2
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxTries)
	assert.Equal(t, 10*time.Second, cfg.JoinTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"SERIAL1", "SERIAL2"}, cfg.Devices)
	// Unspecified values keep their defaults.
	assert.Equal(t, ".devicelab/logs", cfg.LogDir)
	assert.Equal(t, "labctl", cfg.LabctlPath)
}

func TestLoadConfig_HistorySectionExplicitDisable(t *testing.T) {
	path := writeConfig(t, `
history:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.False(t, cfg.History.Enabled)
	// Omitted nested fields keep defaults.
	assert.Equal(t, ".devicelab/history.db", cfg.History.DBPath)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "join_timeout: soon\n")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "max_tries: [not a number\n")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()

	maxTries := 7
	joinTimeout := time.Minute
	recover := true
	cfg.MergeWithFlags(&maxTries, &joinTimeout, nil, &recover, nil)

	assert.Equal(t, 7, cfg.MaxTries)
	assert.Equal(t, time.Minute, cfg.JoinTimeout)
	assert.True(t, cfg.RecoverDevices)
	// Nil flags leave config values untouched.
	assert.Equal(t, ".devicelab/logs", cfg.LogDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero max_tries", func(c *Config) { c.MaxTries = 0 }, true},
		{"negative join_timeout", func(c *Config) { c.JoinTimeout = -time.Second }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"history enabled without path", func(c *Config) { c.History.DBPath = "" }, true},
		{"history disabled without path", func(c *Config) {
			c.History.Enabled = false
			c.History.DBPath = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".devicelab"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".devicelab", "config.yaml"),
		[]byte("max_tries: 2\n"), 0644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxTries)
}
