package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/optisess/internal/conflict"
)

// RuleWatcher keeps the conflict rule table of a configuration file
// current. It satisfies session.RuleSource: units of work that begin after
// a reload see the new rules, units already running keep theirs.
//
// A file that fails to load or validate is logged and ignored; the last
// good table stays in effect.
type RuleWatcher struct {
	path    string
	logger  *slog.Logger
	table   atomic.Pointer[conflict.Table]
	watcher *fsnotify.Watcher

	stopOnce sync.Once
	done     chan struct{}
}

// NewRuleWatcher starts watching path. initial is served until the first
// successful reload.
func NewRuleWatcher(path string, initial *conflict.Table, logger *slog.Logger) (*RuleWatcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch rules: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch rules: %w", err)
	}
	// Editors often replace the file by rename, which drops a watch on the
	// file itself. Watching the directory survives that.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch rules: %w", err)
	}

	w := &RuleWatcher{
		path:    abs,
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	w.table.Store(initial)
	return w, nil
}

// Table returns the current rule table.
func (w *RuleWatcher) Table() *conflict.Table {
	return w.table.Load()
}

// Path returns the watched file.
func (w *RuleWatcher) Path() string {
	return w.path
}

// Run processes file events until ctx is done or Close is called.
func (w *RuleWatcher) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WarnContext(ctx, "rule watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *RuleWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if err := w.Reload(); err != nil {
		w.logger.WarnContext(ctx, "rule reload failed, keeping previous rules",
			"path", w.path, "error", err)
		return
	}
	w.logger.InfoContext(ctx, "rules reloaded", "path", w.path, "rules", w.Table().Len())
}

// Reload loads the file now and swaps in its rules.
func (w *RuleWatcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	t, err := cfg.Table()
	if err != nil {
		return err
	}
	w.table.Store(t)
	return nil
}

// Close stops watching. A running Run returns shortly after.
func (w *RuleWatcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}

// Done is closed when Run returns.
func (w *RuleWatcher) Done() <-chan struct{} {
	return w.done
}
