package entropy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestCollect_SkipsFailuresAndKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a", []byte("aaaa")),
		filepath.Join(dir, "missing"),
		writeFile(t, dir, "b", uniformBytes(1)),
		dir, // a directory slipping through discovery
		writeFile(t, dir, "c", []byte("abab")),
	}

	res := Collect(context.Background(), NewCalculator(Options{}), paths, 1)

	if len(res.Entropies) != 3 {
		t.Fatalf("Entropies len = %d, want 3", len(res.Entropies))
	}
	wantOrder := []string{paths[0], paths[2], paths[4]}
	for i, fe := range res.Entropies {
		if fe.Path != wantOrder[i] {
			t.Errorf("Entropies[%d].Path = %q, want %q", i, fe.Path, wantOrder[i])
		}
	}

	if len(res.Skipped) != 2 {
		t.Fatalf("Skipped len = %d, want 2", len(res.Skipped))
	}
	if !errors.Is(res.Skipped[0].Err, ErrMetadataUnavailable) {
		t.Errorf("Skipped[0].Err = %v, want ErrMetadataUnavailable", res.Skipped[0].Err)
	}
	if !errors.Is(res.Skipped[1].Err, ErrIsADirectory) {
		t.Errorf("Skipped[1].Err = %v, want ErrIsADirectory", res.Skipped[1].Err)
	}
}

func TestCollect_WorkersMatchSequential(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 40; i++ {
		data := uniformBytes(1)[:i*5+1]
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("f%02d", i), data))
	}
	paths = append(paths, filepath.Join(dir, "gone"))

	c := NewCalculator(Options{ChunkSize: 64})
	seq := Collect(context.Background(), c, paths, 1)
	par := Collect(context.Background(), c, paths, 8)

	if len(par.Entropies) != len(seq.Entropies) {
		t.Fatalf("parallel len = %d, sequential len = %d", len(par.Entropies), len(seq.Entropies))
	}
	for i := range seq.Entropies {
		if par.Entropies[i] != seq.Entropies[i] {
			t.Errorf("[%d] parallel = %+v, sequential = %+v", i, par.Entropies[i], seq.Entropies[i])
		}
	}
	if len(par.Skipped) != 1 {
		t.Errorf("parallel Skipped len = %d, want 1", len(par.Skipped))
	}
}

func TestCollect_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a", []byte("a")),
		writeFile(t, dir, "b", []byte("b")),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		res := Collect(ctx, NewCalculator(Options{}), paths, workers)
		if len(res.Entropies) != 0 {
			t.Errorf("workers=%d: Entropies len = %d, want 0", workers, len(res.Entropies))
		}
		for _, s := range res.Skipped {
			if !errors.Is(s.Err, context.Canceled) {
				t.Errorf("workers=%d: skip err = %v, want context.Canceled", workers, s.Err)
			}
		}
	}
}

func TestCollect_Empty(t *testing.T) {
	res := Collect(context.Background(), NewCalculator(Options{}), nil, 1)
	if len(res.Entropies) != 0 || len(res.Skipped) != 0 {
		t.Errorf("Collect(nil) = %+v, want empty", res)
	}
}
