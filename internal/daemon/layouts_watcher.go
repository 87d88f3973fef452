package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docpress/internal/layouts"
)

// LayoutsWatcher monitors the layouts directory and logs the available bundle
// slugs whenever bundles appear or disappear. Changes are debounced since a
// git sync touches many files in quick succession.
type LayoutsWatcher struct {
	bundles  *layouts.Bundles
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	debounce time.Duration
}

// NewLayoutsWatcher creates a watcher over the bundle manager's root.
func NewLayoutsWatcher(bundles *layouts.Bundles) (*LayoutsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &LayoutsWatcher{
		bundles:  bundles,
		watcher:  w,
		stopChan: make(chan struct{}),
		debounce: 2 * time.Second,
	}, nil
}

// Start begins monitoring. A missing layouts directory is not an error; the
// watcher simply stays idle until the next start.
func (lw *LayoutsWatcher) Start(ctx context.Context) error {
	if err := lw.watcher.Add(lw.bundles.Root()); err != nil {
		slog.Warn("Layouts directory not watchable", "dir", lw.bundles.Root(), "error", err)
		return nil
	}
	slog.Info("Watching layouts directory", "dir", lw.bundles.Root())
	go lw.watchLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (lw *LayoutsWatcher) Stop() error {
	close(lw.stopChan)
	return lw.watcher.Close()
}

func (lw *LayoutsWatcher) watchLoop(ctx context.Context) {
	var refreshTimer *time.Timer
	defer func() {
		if refreshTimer != nil {
			refreshTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lw.stopChan:
			return
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if refreshTimer != nil {
				refreshTimer.Stop()
			}
			refreshTimer = time.AfterFunc(lw.debounce, lw.logSlugs)
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Layouts watcher error", "error", err)
		}
	}
}

func (lw *LayoutsWatcher) logSlugs() {
	slugs, err := lw.bundles.Slugs()
	if err != nil {
		slog.Error("Failed to list layout bundles", "error", err)
		return
	}
	slog.Info("Layout bundles changed", "slugs", slugs)
}
