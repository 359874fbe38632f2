package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/aishell/aishell/internal/config"
	"github.com/aishell/aishell/pkg/safety"
	"github.com/aishell/aishell/pkg/tools"
)

// loadConfig loads the config honoring the global --config flag
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildRegistry creates a tool registry populated per the config
func buildRegistry(cfg *config.Config) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	if cfg.Tools.Builtins {
		if err := tools.RegisterBuiltins(registry); err != nil {
			return nil, fmt.Errorf("failed to register builtin tools: %w", err)
		}
	}

	return registry, nil
}

// buildController creates a safety controller at the configured posture. An
// explicit level overrides the config when non-empty.
func buildController(cfg *config.Config, level string) *safety.Controller {
	posture := safety.Level(cfg.Safety.Level)
	if level != "" {
		posture = safety.Level(level)
	}

	return safety.NewController(safety.ControllerConfig{
		Level: posture,
	})
}

// watchSafetyLevel hot reloads the controller's posture when the config file
// changes. The returned stop function is nil when no watcher could be
// started; a missing config file or watcher failure is not fatal.
func watchSafetyLevel(controller *safety.Controller, configPath string) func() {
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}

	watcher, err := config.NewWatcher(config.WatcherConfig{
		ConfigPath: configPath,
		OnChange: func(next *config.Config) {
			controller.SetLevel(safety.Level(next.Safety.Level))
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
		return nil
	}

	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
		return nil
	}

	return func() { _ = watcher.Stop() }
}
