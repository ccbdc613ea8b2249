package typedefs

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const resyncDelay = 200 * time.Millisecond

// Watch re-applies type files as they change until ctx is cancelled. New
// directories are added to the watch list. Renames trigger a debounced full
// Sync since fsnotify reports only the old path.
func Watch(ctx context.Context, s *Syncer) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := s.dir.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger := s.logger
	logger.Info("typedefs: watcher started", slog.String("root", root))

	var resyncTimer *time.Timer
	var resyncCh <-chan time.Time

	scheduleResync := func() {
		if resyncTimer == nil {
			resyncTimer = time.NewTimer(resyncDelay)
			resyncCh = resyncTimer.C
		} else {
			resyncTimer.Reset(resyncDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if resyncTimer != nil {
				resyncTimer.Stop()
			}
			logger.Info("typedefs: watcher stopped")
			return nil

		case <-resyncCh:
			if _, err := s.Sync(ctx); err != nil {
				logger.Warn("typedefs: resync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("typedefs: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleResync()
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				changed, syncErr := s.SyncFile(ctx, rel)
				if syncErr != nil {
					logger.Warn("typedefs: apply failed", slog.String("path", rel), slog.String("error", syncErr.Error()))
					continue
				}
				if changed {
					logger.Info("typedefs: type file applied", slog.String("path", rel))
				}

			case ev.Op&fsnotify.Remove != 0:
				s.Forget(rel)
				logger.Debug("typedefs: type file removed", slog.String("path", rel))

			case ev.Op&fsnotify.Rename != 0:
				s.Forget(rel)
				scheduleResync()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("typedefs: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
