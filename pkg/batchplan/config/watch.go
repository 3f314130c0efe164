package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
)

// Watcher reloads configuration when the config file changes on disk.
// Long-running processes use it to pick up tuned policy constants
// without a restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onload  func(*Config)

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Watch starts watching the config file at path. onload is invoked with
// the freshly loaded config after every successful reload; reload errors
// are logged and the previous config stays in effect.
func Watch(path string, onload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace config files
	// by rename, which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fsw,
		onload:  onload,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	logger := logging.Get("config")

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
			cfg, err := LoadFile(w.path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous", "path", w.path, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", w.path)
			w.onload(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watch error", "error", err)
		}
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.watcher.Close()
	<-w.done
	return err
}
