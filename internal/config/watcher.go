package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDelay absorbs the burst of filesystem events editors produce for
// a single save, and partial writes.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the configuration when the file changes on disk and hands
// each valid new config to a callback. Broken edits are logged and ignored;
// the running configuration stays.
type Watcher struct {
	path     string
	logger   *zap.Logger
	onReload func(*Config)
	stopChan chan struct{}
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, logger *zap.Logger, onReload func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		logger:   logger,
		onReload: onReload,
		stopChan: make(chan struct{}),
	}
}

// Start begins watching. The directory is watched rather than the file so
// rename-based saves keep working.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w.logger.Info("Watching configuration for changes", zap.String("path", w.path))
	go w.run(watcher)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stopChan)
}

func (w *Watcher) run(watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	base := filepath.Base(w.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watch error", zap.Error(err))

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Ignoring config change", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.logger.Info("Configuration reloaded",
		zap.String("path", w.path),
		zap.Int("devices", len(cfg.Devices)))
	w.onReload(cfg)
}
