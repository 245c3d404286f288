package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoryConfig represents run-history store configuration
type HistoryConfig struct {
	// Enabled enables recording of run results to the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history SQLite database
	DBPath string `yaml:"db_path"`

	// KeepRuns is the maximum number of runs to retain (0 = unlimited)
	KeepRuns int `yaml:"keep_runs"`
}

// Config represents devicelab configuration options
type Config struct {
	// MaxTries is the total number of attempts per test item across tries
	MaxTries int `yaml:"max_tries"`

	// RecoverDevices enables worker recovery between tries
	RecoverDevices bool `yaml:"recover_devices"`

	// JoinTimeout is the grace period for in-flight work after cancellation
	JoinTimeout time.Duration `yaml:"join_timeout"`

	// ItemTimeout is the default per-item execution timeout
	ItemTimeout time.Duration `yaml:"item_timeout"`

	// LogLevel sets the logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// LabctlPath is the lab controller binary used to talk to devices
	LabctlPath string `yaml:"labctl_path"`

	// Devices lists the device serials to use; empty means discover
	Devices []string `yaml:"devices"`

	// History contains run-history store configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		MaxTries:       3,
		RecoverDevices: false,
		JoinTimeout:    30 * time.Second,
		ItemTimeout:    5 * time.Minute,
		LogLevel:       "info",
		LogDir:         ".devicelab/logs",
		LabctlPath:     "labctl",
		History: HistoryConfig{
			Enabled:  true,
			DBPath:   ".devicelab/history.db",
			KeepRuns: 100,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations arrive as strings ("30s", "5m") and need explicit parsing.
	type yamlConfig struct {
		MaxTries       int           `yaml:"max_tries"`
		RecoverDevices bool          `yaml:"recover_devices"`
		JoinTimeout    string        `yaml:"join_timeout"`
		ItemTimeout    string        `yaml:"item_timeout"`
		LogLevel       string        `yaml:"log_level"`
		LogDir         string        `yaml:"log_dir"`
		LabctlPath     string        `yaml:"labctl_path"`
		Devices        []string      `yaml:"devices"`
		History        HistoryConfig `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.MaxTries != 0 {
		cfg.MaxTries = yamlCfg.MaxTries
	}
	if yamlCfg.RecoverDevices {
		cfg.RecoverDevices = yamlCfg.RecoverDevices
	}
	if yamlCfg.JoinTimeout != "" {
		d, err := time.ParseDuration(yamlCfg.JoinTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid join_timeout format %q: %w", yamlCfg.JoinTimeout, err)
		}
		cfg.JoinTimeout = d
	}
	if yamlCfg.ItemTimeout != "" {
		d, err := time.ParseDuration(yamlCfg.ItemTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid item_timeout format %q: %w", yamlCfg.ItemTimeout, err)
		}
		cfg.ItemTimeout = d
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.LabctlPath != "" {
		cfg.LabctlPath = yamlCfg.LabctlPath
	}
	if len(yamlCfg.Devices) > 0 {
		cfg.Devices = yamlCfg.Devices
	}

	// Merge the history section only when it is present at all, so an
	// explicit "enabled: false" is distinguishable from an omitted section.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if historySection, exists := rawMap["history"]; exists && historySection != nil {
			history := yamlCfg.History
			historyMap, _ := historySection.(map[string]interface{})

			if _, exists := historyMap["enabled"]; exists {
				cfg.History.Enabled = history.Enabled
			}
			if _, exists := historyMap["db_path"]; exists {
				cfg.History.DBPath = history.DBPath
			}
			if _, exists := historyMap["keep_runs"]; exists {
				cfg.History.KeepRuns = history.KeepRuns
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .devicelab/config.yaml in the
// specified directory. A missing directory or file yields defaults.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".devicelab", "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values, so CLI flags take
// precedence over config file settings.
func (c *Config) MergeWithFlags(maxTries *int, joinTimeout *time.Duration, logDir *string, recoverDevices *bool, devices *[]string) {
	if maxTries != nil {
		c.MaxTries = *maxTries
	}
	if joinTimeout != nil {
		c.JoinTimeout = *joinTimeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if recoverDevices != nil {
		c.RecoverDevices = *recoverDevices
	}
	if devices != nil {
		c.Devices = *devices
	}
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.MaxTries <= 0 {
		return fmt.Errorf("max_tries must be > 0, got %d", c.MaxTries)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.JoinTimeout < 0 {
		return fmt.Errorf("join_timeout must be >= 0, got %v", c.JoinTimeout)
	}
	if c.ItemTimeout < 0 {
		return fmt.Errorf("item_timeout must be >= 0, got %v", c.ItemTimeout)
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path cannot be empty when history is enabled")
		}
		if c.History.KeepRuns < 0 {
			return fmt.Errorf("history.keep_runs must be >= 0, got %d", c.History.KeepRuns)
		}
	}

	return nil
}
