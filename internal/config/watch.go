package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events a single save produces
// (truncate, write, rename) into one reload.
const settleDelay = 100 * time.Millisecond

// Watch reloads the config file at path after every change and passes each
// valid result to onChange until ctx is cancelled.
//
// The parent directory is watched, so saves that replace the file by rename
// are followed. A save that leaves the bytes unchanged is ignored. A file
// that no longer loads is logged and skipped; the caller keeps its config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	last, _ := os.ReadFile(path)
	slog.Info("config: watching for changes", "path", path)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if settle == nil && filepath.Clean(ev.Name) == path && ev.Has(fsnotify.Write|fsnotify.Create) {
				settle = time.After(settleDelay)
			}

		case <-settle:
			settle = nil
			data, err := os.ReadFile(path)
			if err != nil {
				slog.Warn("config: cannot read changed file", "path", path, "err", err)
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}
			cfg, err := decode(data)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
				continue
			}
			last = data
			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "path", path, "err", err)
		}
	}
}
