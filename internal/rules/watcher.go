package rules

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads the rule document when it changes on disk. Editors
// typically fire several events per save, so reloads are debounced.
type Watcher struct {
	loader   *loaderRef
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	onReload func(*Config)
	logger   *zap.Logger
}

// loaderRef keeps the watcher testable without exposing Loader internals.
type loaderRef struct {
	reload func() error
	config func() *Config
	path   string
}

const reloadDebounce = 500 * time.Millisecond

// NewWatcher starts watching the loader's rule document. onReload, if not
// nil, is called with the fresh configuration after each successful reload.
func NewWatcher(loader *Loader, onReload func(*Config), logger *zap.Logger) (*Watcher, error) {
	if loader.Path() == "" {
		return nil, fmt.Errorf("cannot watch built-in rule configuration")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which would
	// otherwise drop the watch on the old inode.
	if err := fsWatcher.Add(filepath.Dir(loader.Path())); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch rule config directory: %w", err)
	}

	w := &Watcher{
		loader: &loaderRef{
			reload: loader.Reload,
			config: loader.Config,
			path:   loader.Path(),
		},
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
		onReload: onReload,
		logger:   logger,
	}
	go w.watchLoop()

	logger.Info("rule configuration hot reload enabled",
		zap.String("path", loader.Path()),
	)
	return w, nil
}

// Stop terminates the watch loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *Watcher) watchLoop() {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.loader.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	if err := w.loader.reload(); err != nil {
		w.logger.Error("rule configuration reload failed, keeping previous rules",
			zap.Error(err),
		)
		return
	}
	w.logger.Info("rule configuration reloaded", zap.String("path", w.loader.path))
	if w.onReload != nil {
		w.onReload(w.loader.config())
	}
}
