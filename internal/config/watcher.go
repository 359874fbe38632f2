package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ChangeCallback is called with the freshly loaded config after the file changes
type ChangeCallback func(cfg *Config)

// Watcher monitors the config file and reloads it on change
type Watcher struct {
	watcher            *fsnotify.Watcher
	loader             *Loader
	configPath         string
	stabilityThreshold time.Duration
	onChange           ChangeCallback
	done               chan struct{}
	debounceMu         sync.Mutex
	debounceTimer      *time.Timer
	stopOnce           sync.Once
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	ConfigPath         string
	StabilityThreshold time.Duration
	OnChange           ChangeCallback
}

// NewWatcher creates a new config watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	loader := NewLoader(config.ConfigPath)

	if config.StabilityThreshold == 0 {
		config.StabilityThreshold = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:            watcher,
		loader:             loader,
		configPath:         loader.GetConfigPath(),
		stabilityThreshold: config.StabilityThreshold,
		onChange:           config.OnChange,
		done:               make(chan struct{}),
	}, nil
}

// Start starts watching the config file
func (w *Watcher) Start() error {
	// Watch the parent directory so editor rename-and-replace saves are seen
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()

	log.Info().
		Str("path", w.configPath).
		Msg("Config watcher started")

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	log.Info().Msg("Config watcher stopped")
	return nil
}

// eventLoop processes file system events
func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.done:
			return
		}
	}
}

// handleEvent handles a file system event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	// Debounce rapid successive writes
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

// reload loads the config file and notifies the callback
func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		log.Error().
			Err(err).
			Str("path", w.configPath).
			Msg("Failed to reload config")
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Warn().
			Err(err).
			Str("path", w.configPath).
			Msg("Reloaded config is invalid, keeping previous settings")
		return
	}

	log.Info().
		Str("path", w.configPath).
		Str("safety_level", cfg.Safety.Level).
		Msg("Config reloaded")

	if w.onChange != nil {
		w.onChange(cfg)
	}
}
