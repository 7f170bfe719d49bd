package gesture

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ScriptStore holds the current script and reloads it when its file changes.
type ScriptStore struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	script Script
}

// NewScriptStore loads path and returns a store serving it.
func NewScriptStore(path string, logger zerolog.Logger) (*ScriptStore, error) {
	s, err := LoadScript(path)
	if err != nil {
		return nil, err
	}
	return &ScriptStore{
		path:     path,
		debounce: 300 * time.Millisecond,
		logger:   logger.With().Str("component", "script_watcher").Logger(),
		script:   s,
	}, nil
}

// Current returns the most recently loaded script.
func (s *ScriptStore) Current() Script {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.script
}

// Watch reloads the script on file changes until ctx is done. The parent
// directory is watched so atomic rename-into-place saves are seen. A reload
// that fails to parse keeps the previous script.
func (s *ScriptStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	s.logger.Info().Str("path", s.path).Msg("Watching script")

	target := filepath.Clean(s.path)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(s.debounce, s.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (s *ScriptStore) reload() {
	script, err := LoadScript(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Script reload failed, keeping previous")
		return
	}
	s.mu.Lock()
	s.script = script
	s.mu.Unlock()
	s.logger.Info().Strs("labels", script.Labels()).Msg("Script reloaded")
}
