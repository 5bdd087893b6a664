// ABOUTME: Config file watcher — reloads the YAML on change and notifies the
// ABOUTME: consumer, with debouncing for editors that write in bursts.

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads path whenever it changes and calls onReload with each config
// that loads and validates cleanly; broken intermediate states are logged and
// skipped. The watcher runs until ctx is cancelled. The parent directory is
// watched rather than the file itself so atomic rename-over saves are seen.
func Watch(ctx context.Context, path string, logger *slog.Logger, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	base := filepath.Base(path)
	logger = logger.With("component", "config-watch", "path", path)

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(watchDebounce)
					debounceC = debounce.C
				} else {
					debounce.Reset(watchDebounce)
				}

			case <-debounceC:
				debounce = nil
				debounceC = nil
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("ignoring config reload", "error", err)
					continue
				}
				logger.Info("config reloaded")
				onReload(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
