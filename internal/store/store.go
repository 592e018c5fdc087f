package store

import (
	"cmp"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/obsidianstack/entropyscan/internal/entropy"
)

// Entry is the latest result for one discovered file together with the
// time it was recorded. Err is set when the file could not be scored.
type Entry struct {
	File      entropy.FileEntropy `json:"file"`
	Err       string              `json:"error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Scored reports whether the entry carries an entropy score.
func (e *Entry) Scored() bool { return e.Err == "" }

// Store is a thread-safe in-memory result store, keyed by path.
type Store struct {
	mu      sync.RWMutex
	data    map[string]*Entry
	updated time.Time
	now     func() time.Time // injectable for deterministic tests
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		data: make(map[string]*Entry),
		now:  time.Now,
	}
}

// Put stores or replaces the score for fe.Path.
func (s *Store) Put(fe entropy.FileEntropy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.data[fe.Path] = &Entry{File: fe, UpdatedAt: now}
	s.updated = now
}

// PutFailure records a discovered file that could not be scored, replacing
// any earlier score for it.
func (s *Store) PutFailure(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.data[path] = &Entry{File: entropy.FileEntropy{Path: path}, Err: err.Error(), UpdatedAt: now}
	s.updated = now
}

// Record stores every score and every skip of a collection run.
func (s *Store) Record(res entropy.CollectResult) {
	for _, fe := range res.Entropies {
		s.Put(fe)
	}
	for _, sk := range res.Skipped {
		s.PutFailure(sk.Path, sk.Err)
	}
}

// Get returns the Entry for path and whether one was found.
func (s *Store) Get(path string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[path]
	return e, ok
}

// Delete removes path. It reports whether an entry was removed.
func (s *Store) Delete(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[path]; !ok {
		return false
	}
	delete(s.data, path)
	s.updated = s.now()
	return true
}

// DeletePrefix removes dir and every path below it, returning the number of
// entries removed.
func (s *Store) DeletePrefix(dir string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sep := string(filepath.Separator)
	prefix := strings.TrimSuffix(dir, sep) + sep
	removed := 0
	for p := range s.data {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(s.data, p)
			removed++
		}
	}
	if removed > 0 {
		s.updated = s.now()
	}
	return removed
}

// Evict removes entries whose UpdatedAt is before cutoff and returns the
// number removed. A full rescan followed by Evict(start) drops files that
// disappeared without a filesystem event.
func (s *Store) Evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for p, e := range s.data {
		if e.UpdatedAt.Before(cutoff) {
			delete(s.data, p)
			removed++
		}
	}
	if removed > 0 {
		s.updated = s.now()
	}
	return removed
}

// List returns a copy of all entries, sorted by path.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.File.Path, b.File.Path) })
	return out
}

// Entropies returns the scored files sorted by path.
func (s *Store) Entropies() []entropy.FileEntropy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entropy.FileEntropy, 0, len(s.data))
	for _, e := range s.data {
		if e.Scored() {
			out = append(out, e.File)
		}
	}
	slices.SortFunc(out, func(a, b entropy.FileEntropy) int { return cmp.Compare(a.Path, b.Path) })
	return out
}

// Scores returns the scored files sorted by path together with the number
// of discovered files, both read under one lock so that len(files) never
// exceeds discovered.
func (s *Store) Scores() (files []entropy.FileEntropy, discovered int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files = make([]entropy.FileEntropy, 0, len(s.data))
	for _, e := range s.data {
		if e.Scored() {
			files = append(files, e.File)
		}
	}
	slices.SortFunc(files, func(a, b entropy.FileEntropy) int { return cmp.Compare(a.Path, b.Path) })
	return files, len(s.data)
}

// Count returns the number of discovered files and how many were scored.
func (s *Store) Count() (discovered, scored int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.data {
		if e.Scored() {
			scored++
		}
	}
	return len(s.data), scored
}

// UpdatedAt returns the time of the last change, or the zero time if the
// store has never been written.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
