// Package watcher reloads the command allow-list when the config file
// changes on disk, so operators can edit it without restarting.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wardenhq/warden/internal/logging"
)

// ReloadFunc is invoked after a settled burst of changes to the watched
// file. A returned error is logged, not fatal.
type ReloadFunc func() error

// ConfigWatcher watches a single file with debouncing. Editors write
// via rename or remove-and-create, so the parent directory is watched
// and events are filtered by name.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	reload   ReloadFunc
	logger   logging.Logger
	watcher  *fsnotify.Watcher
}

// New creates a watcher for path. Watching starts on Run.
func New(path string, debounce time.Duration, reload ReloadFunc, logger logging.Logger) (*ConfigWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	return &ConfigWatcher{
		path:     abs,
		debounce: debounce,
		reload:   reload,
		logger:   logger,
		watcher:  fsw,
	}, nil
}

// Run watches until ctx is canceled.
func (cw *ConfigWatcher) Run(ctx context.Context) error {
	defer cw.watcher.Close()

	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return err
	}

	if cw.logger != nil {
		cw.logger.Info(ctx, "watching config file", "path", cw.path)
	}

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if !cw.relevant(event) {
				continue
			}
			// Restart the debounce window on every relevant event.
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(cw.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := cw.reload(); err != nil {
				if cw.logger != nil {
					cw.logger.Warn(ctx, err, "config reload failed", "path", cw.path)
				}
				continue
			}
			if cw.logger != nil {
				cw.logger.Info(ctx, "config reloaded", "path", cw.path)
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			if cw.logger != nil {
				cw.logger.Warn(ctx, err, "config watch error", "path", cw.path)
			}
		}
	}
}

func (cw *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != cw.path {
		return false
	}

	return event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Rename)
}
