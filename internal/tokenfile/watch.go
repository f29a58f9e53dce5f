package tokenfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange every time the token file at path is created,
// written, replaced or removed, until ctx is canceled. It watches the parent
// directory because Save replaces the file by rename, which would orphan a
// watch on the file itself. onChange runs on the watcher goroutine.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tokenfile: creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("tokenfile: watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	logger.Debug("watching token file", slog.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || !relevant(ev) {
				continue
			}

			logger.Debug("token file changed",
				slog.String("path", target),
				slog.String("op", ev.Op.String()),
			)

			onChange()
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warn("token file watcher error", slog.String("error", werr.Error()))
		}
	}
}

// relevant filters out attribute-only changes.
func relevant(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
