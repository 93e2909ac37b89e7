package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads the config file when it changes on disk. Consumers
// call Current between turns; the engine never swaps configuration in the
// middle of a turn.
type Watcher struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	current *Config
}

// NewWatcher wraps an already-loaded config.
func NewWatcher(path string, initial *Config, logger *zap.Logger) *Watcher {
	return &Watcher{path: path, logger: logger, current: initial}
}

// Current returns the last successfully loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches the config file until ctx is done. Edits that fail to parse
// or validate are logged and ignored; the previous config stays active.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory: editors replace the file, which drops a watch
	// set on the file itself.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		case <-debounce:
			debounce = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload rejected", zap.Error(err))
				continue
			}
			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()
			w.logger.Info("config reloaded", zap.String("path", w.path))
		}
	}
}
