package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes on disk and
// hands the validated result to a callback. Editors and config
// management tools often replace the file atomically (write to a temp
// file, then rename), so the parent directory is watched too and
// events are matched by file name. Rapid event bursts are debounced.
type Watcher struct {
	path     string
	loader   *Loader
	onChange func(*Config)
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	timer  *time.Timer
}

// NewWatcher creates a watcher for the given config file. onChange is
// called with each successfully loaded and validated configuration;
// invalid files are logged and skipped, keeping the running config.
func NewWatcher(path string, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	return &Watcher{
		path:     abs,
		loader:   NewLoader(abs),
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		logger:   logger.With("component", "config-watcher"),
	}, nil
}

// Start begins watching. Non-blocking; runs until Stop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watching config directory: %w", err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx, fsw)

	w.logger.Info("config watcher started", "file", w.path)
	return nil
}

// Stop halts watching and waits for the loop to exit
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("watcher not started")
	}
	cancel()
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watch error", "error", err)
		}
	}
}

// scheduleReload coalesces event bursts into one reload
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error("config reload failed, keeping previous configuration",
			"file", w.path, "error", err)
		return
	}

	w.logger.Info("configuration reloaded", "file", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
