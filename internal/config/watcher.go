package config

import (
	"path/filepath"
	"sync"
	"time"

	"vigil/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 200 * time.Millisecond

// Watcher reloads the settings file on change and hands the parsed result to
// a callback. Edits are debounced because editors commonly fire several
// events for one save. A file that fails to parse keeps the previous
// settings; the error is only logged.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *logging.Logger
	onReload func(Settings)

	fsWatcher *fsnotify.Watcher
	mu        sync.Mutex
	timer     *time.Timer
	closed    bool
}

func Watch(path string, logger *logging.Logger, onReload func(Settings)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors that write-and-rename would
	// otherwise detach the watch on every save.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	watcher := &Watcher{
		path:      path,
		debounce:  defaultReloadDebounce,
		logger:    logger,
		onReload:  onReload,
		fsWatcher: fsWatcher,
	}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("settings watcher error", map[string]string{"error": err.Error()})
			}
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.timer = nil
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	settings, err := Load(w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("settings reload failed", map[string]string{
				"path":  w.path,
				"error": err.Error(),
			})
		}
		return
	}
	if w.logger != nil {
		w.logger.Info("settings reloaded", map[string]string{"path": w.path})
	}
	if w.onReload != nil {
		w.onReload(settings)
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return w.fsWatcher.Close()
}
