// Package config loads trajector configuration from YAML with
// defaults-first merging. CLI flags override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HistoryConfig controls the SQLite run-history store.
type HistoryConfig struct {
	// Enabled records a summary row for each successful conversion
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`
}

// Config represents trajector configuration options
type Config struct {
	// ModelName is the model the agent ran with. Used as fallback for
	// events that do not name their own model. May be empty.
	ModelName string `yaml:"model_name"`

	// LogDir is the run's log directory: the agent log is discovered
	// inside it and the trajectory is written next to it.
	LogDir string `yaml:"log_dir"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// MaxEvents caps how many log events are decoded (0 = unlimited)
	MaxEvents int `yaml:"max_events"`

	// MaxLineBytes caps the size of a single log line (0 = 10MB default)
	MaxLineBytes int `yaml:"max_line_bytes"`

	// History contains run-history store configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		ModelName:    "",
		LogDir:       ".",
		LogLevel:     "info",
		MaxEvents:    0,
		MaxLineBytes: 0,
		History: HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(".trajector", "history.db"),
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, return defaults (not an error)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply non-zero values from file (merging with defaults)
	if fileCfg.ModelName != "" {
		cfg.ModelName = fileCfg.ModelName
	}
	if fileCfg.LogDir != "" {
		cfg.LogDir = fileCfg.LogDir
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.MaxEvents != 0 {
		cfg.MaxEvents = fileCfg.MaxEvents
	}
	if fileCfg.MaxLineBytes != 0 {
		cfg.MaxLineBytes = fileCfg.MaxLineBytes
	}

	// The history section needs presence detection: "enabled: false"
	// must win over the default, but an absent section must not.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, exists := rawMap["history"]; exists && section != nil {
			sectionMap, _ := section.(map[string]interface{})
			if _, exists := sectionMap["enabled"]; exists {
				cfg.History.Enabled = fileCfg.History.Enabled
			}
			if _, exists := sectionMap["db_path"]; exists {
				cfg.History.DBPath = fileCfg.History.DBPath
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .trajector/config.yaml in
// the specified directory. A missing directory or file yields defaults
// without error.
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ".trajector", "config.yaml")
	return LoadConfig(configPath)
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(modelName *string, logDir *string, logLevel *string, maxEvents *int) {
	if modelName != nil {
		c.ModelName = *modelName
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if maxEvents != nil {
		c.MaxEvents = *maxEvents
	}
}

// Validate validates the configuration values.
// Returns an error if any values are invalid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.MaxEvents < 0 {
		return fmt.Errorf("max_events must be >= 0, got %d", c.MaxEvents)
	}
	if c.MaxLineBytes < 0 {
		return fmt.Errorf("max_line_bytes must be >= 0, got %d", c.MaxLineBytes)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}

	return nil
}
