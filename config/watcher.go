package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/paddyops/awd/events"
)

// debounceWindow coalesces the write bursts editors and config management
// tools produce into a single reload.
const debounceWindow = 500 * time.Millisecond

// Watcher reloads the config file on change and announces each reload.
type Watcher struct {
	path      string
	publisher *events.Publisher
	logger    *slog.Logger
	onChange  func(*Config)

	fsw *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given config file. onChange is called
// with each successfully reloaded configuration; it may be nil.
func NewWatcher(path string, publisher *events.Publisher, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: most tools replace config files
	// by rename, which drops a file-level watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:      path,
		publisher: publisher,
		logger:    logger,
		onChange:  onChange,
		fsw:       fsw,
	}, nil
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload(ctx)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Error("Config reload failed, keeping previous configuration",
			"path", w.path, "error", err)
		return
	}

	w.logger.Info("Configuration reloaded", "path", w.path)
	w.publisher.ConfigUpdated(ctx, events.ConfigUpdatedEvent{
		Path:      w.path,
		ChangedAt: time.Now().UTC(),
	})
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
