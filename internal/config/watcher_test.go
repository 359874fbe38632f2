package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "aishell.json")

	w, err := NewWatcher(WatcherConfig{ConfigPath: configPath})
	require.NoError(t, err)
	assert.NotNil(t, w)
	assert.Equal(t, configPath, w.configPath)

	err = w.Stop()
	assert.NoError(t, err)
}

func TestWatcherReloadOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "aishell.json")

	initial := `{"safety": {"level": "moderate"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(initial), 0644))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(WatcherConfig{
		ConfigPath:         configPath,
		StabilityThreshold: 20 * time.Millisecond,
		OnChange: func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	updated := `{"safety": {"level": "strict"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "strict", cfg.Safety.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "aishell.json")

	initial := `{"safety": {"level": "moderate"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(initial), 0644))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(WatcherConfig{
		ConfigPath:         configPath,
		StabilityThreshold: 20 * time.Millisecond,
		OnChange: func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// An invalid level fails validation, so the callback must not fire
	bad := `{"safety": {"level": "paranoid"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(bad), 0644))

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config was applied: %s", cfg.Safety.Level)
	case <-time.After(500 * time.Millisecond):
		// expected
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "aishell.json")

	w, err := NewWatcher(WatcherConfig{ConfigPath: configPath})
	require.NoError(t, err)

	assert.NoError(t, w.Stop())
	// Second stop must not panic on the closed done channel
	_ = w.Stop()
}
