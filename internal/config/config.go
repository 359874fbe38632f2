package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main AIShell configuration
type Config struct {
	// Safety controller settings
	Safety SafetyConfig `json:"safety" mapstructure:"safety"`

	// Parallel executor settings
	Executor ExecutorConfig `json:"executor" mapstructure:"executor"`

	// Tool registry settings
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Audit persistence settings
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// SafetyConfig holds safety controller configuration
type SafetyConfig struct {
	Level string `json:"level" mapstructure:"level"` // strict, moderate, permissive
}

// ExecutorConfig holds parallel executor configuration
type ExecutorConfig struct {
	MaxConcurrent      int    `json:"max_concurrent" mapstructure:"max_concurrent"`
	Strategy           string `json:"strategy" mapstructure:"strategy"` // all, first, majority, threshold
	Threshold          int    `json:"threshold" mapstructure:"threshold"`
	TaskTimeoutSeconds int    `json:"task_timeout_seconds" mapstructure:"task_timeout_seconds"`
}

// ToolsConfig holds tool registry configuration
type ToolsConfig struct {
	Builtins              bool `json:"builtins" mapstructure:"builtins"`
	DefaultTimeoutSeconds int  `json:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
}

// AuditConfig holds audit persistence configuration
type AuditConfig struct {
	DBPath          string `json:"db_path" mapstructure:"db_path"`
	RetentionDays   int    `json:"retention_days" mapstructure:"retention_days"`
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"` // cron expression
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Safety: SafetyConfig{
			Level: "moderate",
		},
		Executor: ExecutorConfig{
			MaxConcurrent:      5,
			Strategy:           "all",
			Threshold:          0,
			TaskTimeoutSeconds: 180,
		},
		Tools: ToolsConfig{
			Builtins:              true,
			DefaultTimeoutSeconds: 30,
		},
		Audit: AuditConfig{
			RetentionDays:   30,
			CleanupSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Safety.Level {
	case "strict", "moderate", "permissive":
	default:
		return fmt.Errorf("invalid safety level: %s (must be: strict, moderate, permissive)", c.Safety.Level)
	}

	if c.Executor.MaxConcurrent < 1 {
		return fmt.Errorf("executor max_concurrent must be at least 1, got %d", c.Executor.MaxConcurrent)
	}

	switch c.Executor.Strategy {
	case "all", "first", "majority":
	case "threshold":
		if c.Executor.Threshold <= 0 {
			return fmt.Errorf("executor threshold must be positive when strategy is threshold, got %d", c.Executor.Threshold)
		}
	default:
		return fmt.Errorf("invalid executor strategy: %s (must be: all, first, majority, threshold)", c.Executor.Strategy)
	}

	if c.Executor.TaskTimeoutSeconds <= 0 {
		return fmt.Errorf("executor task_timeout_seconds must be positive, got %d", c.Executor.TaskTimeoutSeconds)
	}

	if c.Tools.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("tools default_timeout_seconds must be positive, got %d", c.Tools.DefaultTimeoutSeconds)
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit retention_days must be >= 0, got %d", c.Audit.RetentionDays)
	}

	return nil
}
