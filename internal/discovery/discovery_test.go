package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

// mkTree creates the given relative files (and their parents) under a temp dir.
func mkTree(t *testing.T, rels ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range rels {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(rel), 0o600); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func TestCollect_RecursiveSorted(t *testing.T) {
	root := mkTree(t, "b.bin", "a/one.txt", "a/deep/two.txt", "c/three.dat")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Collect(root, Options{})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := []string{
		filepath.Join(root, "a", "deep", "two.txt"),
		filepath.Join(root, "a", "one.txt"),
		filepath.Join(root, "b.bin"),
		filepath.Join(root, "c", "three.dat"),
	}
	if len(got) != len(want) {
		t.Fatalf("Collect() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCollect_SingleFile(t *testing.T) {
	root := mkTree(t, "only.bin")
	file := filepath.Join(root, "only.bin")

	got, err := Collect(file, Options{})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != 1 || got[0] != file {
		t.Errorf("Collect(file) = %v, want [%s]", got, file)
	}
}

func TestCollect_MissingRootPassesThrough(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	got, err := Collect(missing, Options{})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != 1 || got[0] != missing {
		t.Errorf("Collect(missing) = %v, want [%s]", got, missing)
	}
}

func TestCollect_EmptyDirectory(t *testing.T) {
	got, err := Collect(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Collect(empty) = %v, want none", got)
	}
}

func TestCollect_Excludes(t *testing.T) {
	root := mkTree(t,
		"keep.bin",
		"debug.log",
		"sub/trace.log",
		".git/config",
		"sub/.git/HEAD",
		"build/out/app",
		"src/main.go",
	)

	got, err := Collect(root, Options{Excludes: []string{"*.log", ".git", "build/**"}})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := map[string]bool{
		filepath.Join(root, "keep.bin"):       true,
		filepath.Join(root, "src", "main.go"): true,
	}
	if len(got) != len(want) {
		t.Fatalf("Collect() = %v, want %d files", got, len(want))
	}
	for _, p := range got {
		if !want[p] {
			t.Errorf("unexpected file %q", p)
		}
	}
}

func TestNewMatcher_InvalidPattern(t *testing.T) {
	if _, err := NewMatcher([]string{"[unclosed"}); err == nil {
		t.Fatal("expected error for invalid pattern, got nil")
	}
	if _, err := Collect(t.TempDir(), Options{Excludes: []string{"[unclosed"}}); err == nil {
		t.Fatal("Collect: expected error for invalid pattern, got nil")
	}
}

func TestMatcher_Excluded(t *testing.T) {
	m, err := NewMatcher([]string{"*.tmp", "vendor", "cache/**"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		rel  string
		want bool
	}{
		{"file.tmp", true},
		{"a/b/file.tmp", true},
		{"vendor/x/y.go", true},
		{"a/vendor/y.go", true},
		{"cache/blob", true},
		{"cache", false},
		{"src/cache.go", false},
		{"main.go", false},
	}
	for _, tc := range tests {
		if got := m.Excluded(tc.rel); got != tc.want {
			t.Errorf("Excluded(%q) = %v, want %v", tc.rel, got, tc.want)
		}
	}

	var none *Matcher
	if none.Excluded("anything") {
		t.Error("nil Matcher excluded a path")
	}
}

func TestWalk_Directories(t *testing.T) {
	root := mkTree(t, "a/b/file", "skip/c/file", "d/file")

	got, err := Walk(root, Options{Excludes: []string{"skip"}})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "d"),
	}
	if len(got) != len(want) {
		t.Fatalf("Walk() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := Walk(filepath.Join(root, "d", "file"), Options{}); err == nil {
		t.Error("Walk(file): expected error, got nil")
	}
}
