package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "moderate", cfg.Safety.Level)
	assert.Equal(t, 5, cfg.Executor.MaxConcurrent)
	assert.Equal(t, "all", cfg.Executor.Strategy)
	assert.Equal(t, 180, cfg.Executor.TaskTimeoutSeconds)
	assert.True(t, cfg.Tools.Builtins)
	assert.Equal(t, 30, cfg.Tools.DefaultTimeoutSeconds)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.Audit.CleanupSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()

		err := cfg.Validate()
		assert.NoError(t, err)
	})

	t.Run("invalid safety level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Safety.Level = "paranoid"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "safety level")
	})

	t.Run("zero max concurrent", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Executor.MaxConcurrent = 0

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_concurrent")
	})

	t.Run("invalid strategy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Executor.Strategy = "quorum"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "strategy")
	})

	t.Run("threshold strategy without threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Executor.Strategy = "threshold"
		cfg.Executor.Threshold = 0

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "threshold")
	})

	t.Run("threshold strategy with threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Executor.Strategy = "threshold"
		cfg.Executor.Threshold = 3

		err := cfg.Validate()
		assert.NoError(t, err)
	})

	t.Run("negative task timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Executor.TaskTimeoutSeconds = -1

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "task_timeout_seconds")
	})

	t.Run("zero tool timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tools.DefaultTimeoutSeconds = 0

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "default_timeout_seconds")
	})

	t.Run("negative retention", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Audit.RetentionDays = -5

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "retention_days")
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()

	str := cfg.String()
	assert.NotEmpty(t, str)
	assert.Contains(t, str, "safety")
	assert.Contains(t, str, "executor")
}
