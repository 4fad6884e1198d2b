package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// debounceDelay coalesces the write+rename event burst an editor or our own
// atomic save produces into a single reload.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the settings file when it changes on disk and fans the
// change out to registered callbacks (alert engine cooldown refresh, loop
// interval update, notification dedup reset).
type Watcher struct {
	mgr *Manager
	log logrus.FieldLogger
	fs  *fsnotify.Watcher

	mu       sync.Mutex
	onChange []func()
}

// NewWatcher watches the directory containing the settings file; watching the
// directory rather than the file survives atomic replace-by-rename saves.
func NewWatcher(mgr *Manager, log logrus.FieldLogger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create settings watcher: %w", err)
	}

	dir := filepath.Dir(mgr.Path())
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch settings dir %q: %w", dir, err)
	}

	return &Watcher{mgr: mgr, log: log, fs: fs}, nil
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.mgr.Path() {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
				fire = debounce.C
			} else {
				debounce.Reset(debounceDelay)
			}
		case <-fire:
			debounce = nil
			fire = nil
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("settings watcher error")
		}
	}
}

func (w *Watcher) reload() {
	if err := w.mgr.Reload(); err != nil {
		w.log.WithError(err).Warn("settings changed on disk but reload failed")
		return
	}
	w.log.WithField("path", w.mgr.Path()).Info("settings reloaded")

	w.mu.Lock()
	callbacks := append([]func(){}, w.onChange...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}
