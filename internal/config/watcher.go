package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher calls onChange after the settings file settles following a
// create, write, rename or remove.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   *slog.Logger
}

type WatcherOption func(*Watcher)

func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

func NewWatcher(path string, onChange func(ctx context.Context), logger *slog.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: filepath.Clean(path), debounce: defaultDebounce, onChange: onChange, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. The directory is watched rather than the
// file so editors that replace the file by rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(w.path), err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			w.logger.Debug("settings file changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("settings watcher error", "err", err)
		case <-timer.C:
			w.onChange(ctx)
		}
	}
}

// Reloader rebuilds the model client whenever settings change.
type Reloader struct {
	loader  Loader
	apply   func(Settings) error
	logger  *slog.Logger
	current Settings
}

func NewReloader(loader Loader, apply func(Settings) error, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{loader: loader, apply: apply, logger: logger}
}

// Reload loads settings and applies them when they differ from the last
// applied ones. A failed load or apply keeps the previous settings.
func (r *Reloader) Reload(ctx context.Context) (Settings, error) {
	s, err := r.loader.Load(ctx)
	if err != nil {
		r.logger.Warn("settings reload failed", "err", err)
		return r.current, err
	}
	if s == r.current {
		return s, nil
	}
	if err := r.apply(s); err != nil {
		r.logger.Warn("settings rejected", "err", err, "base_url", s.BaseURL, "model", s.Model)
		return r.current, err
	}
	r.current = s
	r.logger.Info("settings applied", "base_url", s.BaseURL, "model", s.Model)
	return s, nil
}

// OnChange adapts Reload for Watcher.
func (r *Reloader) OnChange(ctx context.Context) {
	_, _ = r.Reload(ctx)
}
