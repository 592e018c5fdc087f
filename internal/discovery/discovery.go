// Package discovery expands a scan target into the list of files to score.
//
// Directories are walked concurrently with cwalk; the result is sorted so
// that output order does not depend on goroutine scheduling. Exclusions are
// gobwas/glob patterns.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/iafan/cwalk"
)

// Options controls which entries are returned.
type Options struct {
	// Excludes are glob patterns ('/' separated). A file is skipped when a
	// pattern matches its path relative to the root, its base name, or any
	// of its parent directories (by relative path or by name).
	Excludes []string
}

// Matcher holds compiled exclusion patterns.
type Matcher struct {
	patterns []glob.Glob
}

// NewMatcher compiles patterns. An invalid pattern is an error.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("discovery: exclude %q: %w", p, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Excluded reports whether rel (a path relative to the scan root) is
// excluded.
func (m *Matcher) Excluded(rel string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for i := range parts {
		prefix := strings.Join(parts[:i+1], "/")
		for _, g := range m.patterns {
			if g.Match(prefix) || g.Match(parts[i]) {
				return true
			}
		}
	}
	return false
}

// Collect returns the files under root.
//
// A root that is not a directory is returned as the only target, whether or
// not it exists; the entropy calculator reports any problem with it. Entries
// that cannot be read during the walk are logged and left out.
func Collect(root string, opts Options) ([]string, error) {
	m, err := NewMatcher(opts.Excludes)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return []string{root}, nil
	}

	var (
		mu    sync.Mutex
		files []string
	)
	walkErr := cwalk.Walk(root, func(rel string, fi os.FileInfo, err error) error {
		if err != nil {
			slog.Warn("discovery: cannot read entry", "root", root, "path", rel, "err", err)
			return nil
		}
		if fi == nil || fi.IsDir() || m.Excluded(rel) {
			return nil
		}
		mu.Lock()
		files = append(files, filepath.Join(root, rel))
		mu.Unlock()
		return nil
	})
	if walkErr != nil {
		slog.Warn("discovery: walk incomplete", "root", root, "err", walkErr)
	}

	sort.Strings(files)
	return files, nil
}

// Walk returns every directory under root, root included, skipping excluded
// ones. Used to register filesystem watches.
func Walk(root string, opts Options) ([]string, error) {
	m, err := NewMatcher(opts.Excludes)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discovery: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discovery: %s is not a directory", root)
	}

	var (
		mu   sync.Mutex
		dirs = []string{root}
	)
	walkErr := cwalk.Walk(root, func(rel string, fi os.FileInfo, err error) error {
		if err != nil || fi == nil || !fi.IsDir() || rel == "" || rel == "." || m.Excluded(rel) {
			return nil
		}
		mu.Lock()
		dirs = append(dirs, filepath.Join(root, rel))
		mu.Unlock()
		return nil
	})
	if walkErr != nil {
		slog.Warn("discovery: walk incomplete", "root", root, "err", walkErr)
	}

	sort.Strings(dirs)
	return dirs, nil
}
