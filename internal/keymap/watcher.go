package keymap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"devtype/internal/translit"
)

// DefaultDebounce is how long the watcher waits after the last write before
// reloading.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads an overlay file when it changes and hands the new tables
// to a callback, typically Engine.SetTables. A file that fails to load is
// reported on Errors and the previous tables stay active.
type Watcher struct {
	path     string
	onLoad   func(*translit.Tables)
	logger   *slog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	errChan chan error

	mu    sync.Mutex
	timer *time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger for reload messages.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher for the overlay at path.
func NewWatcher(path string, onLoad func(*translit.Tables), opts ...WatcherOption) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     path,
		onLoad:   onLoad,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		ctx:      ctx,
		cancel:   cancel,
		errChan:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start loads the overlay once and then watches its directory.
func (w *Watcher) Start() error {
	if err := w.Reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.watcher = watcher

	go w.watchLoop()
	return nil
}

// Reload loads the overlay now and passes the tables to the callback.
func (w *Watcher) Reload() error {
	tables, err := LoadTables(w.path)
	if err != nil {
		return err
	}
	w.logger.Info("keymap loaded", "path", w.path, "rules", len(tables.Rules()))
	if w.onLoad != nil {
		w.onLoad(tables)
	}
	return nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if w.ctx.Err() != nil {
			return
		}
		if err := w.Reload(); err != nil {
			w.logger.Warn("keymap reload failed", "path", w.path, "error", err)
			w.report(err)
		}
	})
}

func (w *Watcher) report(err error) {
	select {
	case w.errChan <- err:
	default:
	}
}

// Errors returns reload and watch errors. Errors are dropped while the
// channel is full.
func (w *Watcher) Errors() <-chan error {
	return w.errChan
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.cancel()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
