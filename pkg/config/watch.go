package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/driftfs/driftfs/internal/logger"
)

// Watcher applies logging changes from config file edits without a restart.
// Only the log level is hot-reloaded; every other setting needs a restart to
// take effect safely.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	done    chan struct{}
}

// WatchLogging starts watching the config file for logging level changes.
func WatchLogging(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Watch the directory: editors and config management tools replace the
	// file atomically via rename, which drops a watch on the file itself.
	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		watcher: fsw,
		path:    configPath,
		done:    make(chan struct{}),
	}
	go w.loop()

	logger.Debug("config watcher started", "path", configPath)
	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// reload re-reads the config file and applies the logging level.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn("ignoring config change: reload failed", "path", w.path, "error", err)
		return
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.Info("log level updated", "level", cfg.Logging.Level)
}
