// Package watcher keeps a store.Store in step with the files under a scan
// target. After an initial full scan it reacts to fsnotify events: written
// or created files are rescored, new directories are watched and scanned,
// and removed paths are dropped. A watcher error (such as a queue overflow)
// triggers a full rescan.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/obsidianstack/entropyscan/internal/discovery"
	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/store"
)

// Watcher scores a target into a Store and keeps it current.
type Watcher struct {
	root    string
	opts    discovery.Options
	matcher *discovery.Matcher
	workers int
	store   *store.Store
	calc    atomic.Pointer[entropy.Calculator]
	ready   chan struct{}
}

// New returns a Watcher for root. Exclusion patterns are compiled here.
func New(root string, calc *entropy.Calculator, st *store.Store, opts discovery.Options, workers int) (*Watcher, error) {
	m, err := discovery.NewMatcher(opts.Excludes)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:    filepath.Clean(root),
		opts:    opts,
		matcher: m,
		workers: workers,
		store:   st,
		ready:   make(chan struct{}),
	}
	w.calc.Store(calc)
	return w, nil
}

// SetCalculator swaps the calculator used for later scores, e.g. after a
// config reload. Call Resync to rescore existing files.
func (w *Watcher) SetCalculator(c *entropy.Calculator) {
	w.calc.Store(c)
}

// Ready is closed once Run has registered its watches.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Resync rescans the whole target and drops entries for files that no
// longer exist.
func (w *Watcher) Resync(ctx context.Context) error {
	paths, err := discovery.Collect(w.root, w.opts)
	if err != nil {
		return err
	}
	start := time.Now()
	res := entropy.Collect(ctx, w.calc.Load(), paths, w.workers)
	if err := ctx.Err(); err != nil {
		return err
	}
	res.Skipped = dropVanished(res.Skipped)
	w.store.Record(res)
	evicted := w.store.Evict(start)
	slog.Info("watcher: resynced",
		"root", w.root, "discovered", len(paths),
		"scored", len(res.Entropies), "evicted", evicted)
	return nil
}

// Run watches the target until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer fw.Close()

	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	single := !info.IsDir()
	if single {
		// Watch the parent so that atomic replacements are seen.
		if err := fw.Add(filepath.Dir(w.root)); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
	} else if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	close(w.ready)
	slog.Info("watcher: watching", "root", w.root, "dirs", len(fw.WatchList()))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if single && ev.Name != w.root {
				continue
			}
			if !single && w.excluded(ev.Name) {
				continue
			}
			w.handle(fw, ev)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher: fsnotify error, rescanning", "root", w.root, "err", err)
			if err := w.Resync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("watcher: resync failed", "root", w.root, "err", err)
			}
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if n := w.store.DeletePrefix(ev.Name); n > 0 {
			slog.Debug("watcher: removed", "path", ev.Name, "entries", n)
		}

	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				slog.Warn("watcher: cannot watch new directory", "path", ev.Name, "err", err)
			}
			w.scoreTree(ev.Name)
			return
		}
		w.score(ev.Name)

	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		// Directories report attribute changes too; they are not files.
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			return
		}
		w.score(ev.Name)
	}
}

// dropVanished removes files that disappeared between discovery and
// scoring. They are no longer discovered, the same as in score.
func dropVanished(skipped []entropy.Skip) []entropy.Skip {
	out := skipped[:0]
	for _, sk := range skipped {
		if !errors.Is(sk.Err, entropy.ErrMetadataUnavailable) {
			out = append(out, sk)
		}
	}
	return out
}

// addTree registers a watch on dir and every non-excluded directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	dirs, err := discovery.Walk(dir, discovery.Options{})
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	for _, d := range dirs {
		if w.excluded(d) {
			continue
		}
		if err := fw.Add(d); err != nil {
			slog.Warn("watcher: cannot watch directory", "path", d, "err", err)
		}
	}
	return nil
}

// scoreTree scores the files of a directory that appeared after startup.
func (w *Watcher) scoreTree(dir string) {
	paths, err := discovery.Collect(dir, discovery.Options{})
	if err != nil {
		slog.Warn("watcher: cannot list new directory", "path", dir, "err", err)
		return
	}
	for _, p := range paths {
		if !w.excluded(p) {
			w.score(p)
		}
	}
}

func (w *Watcher) score(path string) {
	fe, err := w.calc.Load().Calculate(path)
	if err != nil {
		if errors.Is(err, entropy.ErrMetadataUnavailable) {
			// Gone again before we got to it; a Remove event follows.
			w.store.Delete(path)
			return
		}
		slog.Debug("watcher: cannot score file", "path", path, "err", err)
		w.store.PutFailure(path, err)
		return
	}
	w.store.Put(fe)
	slog.Debug("watcher: scored", "path", path, "entropy", fe.Entropy)
}

// excluded applies the exclusion patterns to path relative to the root.
func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	return w.matcher.Excluded(rel)
}
