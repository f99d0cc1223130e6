package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/force-h2020/wfmanager/errors"
)

const watchDebounce = 200 * time.Millisecond

// watchFile calls onChange each time path is written, created or replaced,
// once per burst of events, until ctx is done. The parent directory is
// watched so editors that save through a rename are followed.
func watchFile(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapFatal(err, "wfmanager", "watchFile", "create watcher")
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.WrapInvalid(err, "wfmanager", "watchFile", "resolve path")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.WrapInvalid(err, "wfmanager", "watchFile", "watch directory")
	}
	logger.Info("Watching workflow file", "path", abs)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error", "error", err)
		}
	}
}
