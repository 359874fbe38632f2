package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSafetyLevel validates a safety posture name
func (v *Validator) ValidateSafetyLevel(level string) error {
	if level == "" {
		return nil // Use default
	}

	validLevels := []string{"strict", "moderate", "permissive"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid safety level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateStrategy validates an executor strategy name
func (v *Validator) ValidateStrategy(strategy string) error {
	if strategy == "" {
		return nil // Use default
	}

	validStrategies := []string{"all", "first", "majority", "threshold"}
	for _, valid := range validStrategies {
		if strategy == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid strategy: %s (must be one of: %s)", strategy, strings.Join(validStrategies, ", "))
}

// ValidateMaxConcurrent validates the executor concurrency bound
func (v *Validator) ValidateMaxConcurrent(n int) error {
	if n < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", n)
	}
	if n > 1000 {
		return fmt.Errorf("max_concurrent too large (max 1000), got %d", n)
	}
	return nil
}

// ValidateTimeout validates a timeout value in seconds
func (v *Validator) ValidateTimeout(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", seconds)
	}
	return nil
}

// ValidateCronSchedule validates a cron expression
func (v *Validator) ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return nil // Use default
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateSafetyLevel(cfg.Safety.Level); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateStrategy(cfg.Executor.Strategy); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMaxConcurrent(cfg.Executor.MaxConcurrent); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTimeout(cfg.Executor.TaskTimeoutSeconds); err != nil {
		errors = append(errors, fmt.Errorf("executor task_timeout_seconds: %w", err))
	}
	if cfg.Executor.Strategy == "threshold" && cfg.Executor.Threshold <= 0 {
		errors = append(errors, fmt.Errorf("threshold must be positive when strategy is threshold, got %d", cfg.Executor.Threshold))
	}

	if err := v.ValidateTimeout(cfg.Tools.DefaultTimeoutSeconds); err != nil {
		errors = append(errors, fmt.Errorf("tools default_timeout_seconds: %w", err))
	}

	if cfg.Audit.RetentionDays < 0 {
		errors = append(errors, fmt.Errorf("audit retention_days must be >= 0, got %d", cfg.Audit.RetentionDays))
	}
	if err := v.ValidateCronSchedule(cfg.Audit.CleanupSchedule); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
