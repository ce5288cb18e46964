package job

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for a burst of writes to settle
const DefaultDebounce = 200 * time.Millisecond

// Watch reloads the manifest at path whenever it changes and hands the result
// to onChange, until ctx is done. A manifest that fails to load is passed as
// a nil manifest and the error. onChange runs on the watching goroutine, so
// changes that arrive while it runs are coalesced into one reload.
//
// The containing directory is watched rather than the file so that editors
// which replace files by rename are still seen.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Manifest, error)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve manifest path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}
	slog.Debug("watching manifest", "path", absPath)

	// Debounce timer, re-armed by every event of a burst
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("stopping manifest watcher", "path", absPath)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			slog.Debug("manifest changed", "path", absPath, "op", event.Op)
			timer.Reset(debounce)

		case <-timer.C:
			onChange(Load(absPath))

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			slog.Error("watcher error", "path", absPath, "error", err)
		}
	}
}
