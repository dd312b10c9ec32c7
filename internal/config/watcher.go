package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file whenever it changes on disk and hands
// the freshly loaded Config to OnChange. The caller decides which settings are
// safe to apply at runtime.
type Watcher struct {
	Path     string
	Debounce time.Duration
	OnChange func(*Config)
	OnError  func(error)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a Watcher for path.
func NewWatcher(path string, onChange func(*Config), onError func(error)) *Watcher {
	return &Watcher{
		Path:     path,
		Debounce: defaultWatchDebounce,
		OnChange: onChange,
		OnError:  onError,
	}
}

// Run blocks until ctx is cancelled. The parent directory is watched rather
// than the file itself so atomic replace-by-rename saves are seen.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config watcher: failed to watch %s: %w", filepath.Dir(abs), err)
	}

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx, abs)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload(path)
	})
}

func (w *Watcher) reload(path string) {
	cfg, err := LoadConfig(path)
	if err != nil {
		w.reportError(err)
		return
	}
	level, err := ParseLogLevel(string(cfg.Logging.LogLevel))
	if err != nil {
		w.reportError(err)
		return
	}
	cfg.Logging.LogLevel = level
	if w.OnChange != nil {
		w.OnChange(cfg)
	}
}

func (w *Watcher) reportError(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
