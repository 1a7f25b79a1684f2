package config

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of write events most editors and
// atomic-rename writers produce for a single logical save, grounded on
// file_watcher.go's debounce-timer pattern.
const debounceWindow = 200 * time.Millisecond

// Watcher reloads a Config from disk whenever its backing file changes.
type Watcher struct {
	logger *slog.Logger
	path   string
	onLoad func(*Config)

	fsw   *fsnotify.Watcher
	timer *time.Timer
	done  chan struct{}
}

// WatchFile starts watching path for changes, invoking onLoad with the
// freshly reloaded Config after each debounced write. Call Close to stop.
func WatchFile(logger *slog.Logger, path string, onLoad func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		logger: logger,
		path:   path,
		onLoad: onLoad,
		fsw:    fsw,
		done:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.addPending()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) addPending() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceWindow, w.firePending)
}

func (w *Watcher) firePending() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onLoad(cfg)
}

// Close stops the watcher and releases its underlying resources.
func (w *Watcher) Close() error {
	close(w.done)
	if w.timer != nil {
		w.timer.Stop()
	}
	return w.fsw.Close()
}
