package templates

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses bursts of file events into one reload
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads engines when files below their directories change
type Watcher struct {
	fsw      *fsnotify.Watcher
	engines  []*Engine
	debounce time.Duration
	logger   *zap.Logger

	// OnReload is called after each engine reloaded successfully
	OnReload func()

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher watches dirs and all their subdirectories
func NewWatcher(dirs []string, engines []*Engine, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		engines:  engines,
		debounce: debounce,
		logger:   logger,
	}
	for _, dir := range dirs {
		if err := w.addRecursive(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		w.logger.Debug("watching", zap.String("dir", p))
		return nil
	})
}

// Start runs the event loop until ctx is done or Close is called
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	w.logger.Info("File watcher started for hot-reload", zap.Strings("paths", w.fsw.WatchList()))
}

func (w *Watcher) loop(ctx context.Context) {
	debounceTimer := time.NewTimer(0)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				// new directories need their own watch
				if err := w.addRecursive(event.Name); err != nil {
					w.logger.Debug("not watching new path", zap.String("path", event.Name), zap.Error(err))
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.logger.Debug("template file changed",
					zap.String("file", event.Name),
					zap.String("operation", event.Op.String()))
				debounceTimer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-debounceTimer.C:
			w.reload()
		}
	}
}

// reload reloads every engine, then notifies each notifier once so waiters
// never see a half reloaded set
func (w *Watcher) reload() {
	notifiers := make(map[*Notifier]struct{})
	for _, e := range w.engines {
		start := time.Now()
		if err := e.load(); err != nil {
			w.logger.Error("Failed to reload templates", zap.String("engine", e.name), zap.Error(err))
			continue
		}
		notifiers[e.notifier] = struct{}{}
		w.logger.Info("Templates reloaded",
			zap.String("engine", e.name),
			zap.String("etag", e.ETag()),
			zap.Duration("took", time.Since(start)))
		if w.OnReload != nil {
			w.OnReload()
		}
	}
	for n := range notifiers {
		n.Notify()
	}
}

// Close stops watching and waits for the loop to exit
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}
