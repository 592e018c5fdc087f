package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/stats"
)

// invoke runs the CLI with args and returns the exit code and both streams.
func invoke(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// tree writes a small target: a zero-entropy file, a 2-bit file and an
// excluded log.
func tree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"flat.bin":    "aaaa",
		"sub/mix.bin": "abcd",
		"noise.log":   "abcdefgh",
	}
	for rel, data := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestRun_Version(t *testing.T) {
	code, out, _ := invoke(t, "version")
	if code != exitOK || out != "entropyscan dev\n" {
		t.Errorf("version: code=%d out=%q", code, out)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"missing target", []string{"scan"}},
		{"bad format", []string{"scan", "-t", ".", "-f", "xml"}},
		{"bad workers", []string{"stats", "-t", ".", "-w", "0"}},
		{"unknown flag", []string{"scan", "-t", ".", "-q"}},
		{"stray argument", []string{"scan", "-t", ".", "extra"}},
		{"bad log format", []string{"-log-format", "xml", "version"}},
		{"bad log level", []string{"-log-level", "loud", "version"}},
		{"bad exclude", []string{"scan", "-t", ".", "-x", "[bad"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, _, _ := invoke(t, tc.args...); code != exitUsage {
				t.Errorf("exit code: got %d, want %d", code, exitUsage)
			}
		})
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	code, _, _ := invoke(t, "-config", filepath.Join(t.TempDir(), "nope.yaml"), "version")
	if code != exitFailure {
		t.Errorf("exit code: got %d, want %d", code, exitFailure)
	}
}

func TestRun_ScanCSV(t *testing.T) {
	root := tree(t)
	code, out, stderr := invoke(t, "scan", "-t", root, "-f", "csv", "-x", "*.log")
	if code != exitOK {
		t.Fatalf("exit code %d, stderr: %s", code, stderr)
	}
	want := "-----Entropies-----\npath,entropy\n" +
		filepath.Join(root, "flat.bin") + ",0.000\n" +
		filepath.Join(root, "sub", "mix.bin") + ",2.000\n"
	if out != want {
		t.Errorf("output:\ngot  %q\nwant %q", out, want)
	}
}

func TestRun_ScanMinEntropyJSON(t *testing.T) {
	root := tree(t)
	code, out, stderr := invoke(t, "scan", "-t", root, "-f", "json", "-m", "2.5")
	if code != exitOK {
		t.Fatalf("exit code %d, stderr: %s", code, stderr)
	}
	var files []entropy.FileEntropy
	if err := json.Unmarshal([]byte(out), &files); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if len(files) != 1 || files[0].Path != filepath.Join(root, "noise.log") || files[0].Entropy != 3 {
		t.Errorf("files: got %+v", files)
	}
}

func TestRun_ScanSingleFile(t *testing.T) {
	root := tree(t)
	path := filepath.Join(root, "sub", "mix.bin")
	code, out, _ := invoke(t, "scan", "-t", path, "-f", "csv")
	if code != exitOK || !strings.Contains(out, path+",2.000\n") {
		t.Errorf("code=%d out=%q", code, out)
	}
}

func TestRun_StatsJSON(t *testing.T) {
	root := tree(t)
	code, out, stderr := invoke(t, "stats", "-t", root, "-f", "json")
	if code != exitOK {
		t.Fatalf("exit code %d, stderr: %s", code, stderr)
	}
	var doc struct {
		Stats    stats.Stats           `json:"stats"`
		Outliers []entropy.FileEntropy `json:"outliers"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if doc.Stats.Total != 3 || doc.Stats.Scored != 3 {
		t.Errorf("counts: got %+v", doc.Stats)
	}
	// Scores 0, 2, 3: mean 5/3, median 2.
	if doc.Stats.Median != 2 || doc.Stats.Mean < 1.66 || doc.Stats.Mean > 1.67 {
		t.Errorf("aggregates: got %+v", doc.Stats)
	}
	if doc.Outliers == nil {
		t.Error("outliers: missing, want []")
	}
}

func TestRun_StatsNoOutliers(t *testing.T) {
	root := tree(t)
	code, out, _ := invoke(t, "stats", "-t", root, "-n", "-f", "csv")
	if code != exitOK {
		t.Fatalf("exit code %d", code)
	}
	if !strings.HasPrefix(out, "-----Stats-----\n") || strings.Contains(out, "Outliers") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRun_StatsNothingScored(t *testing.T) {
	dir := t.TempDir()
	code, out, _ := invoke(t, "stats", "-t", dir, "-f", "csv")
	if code != exitOK {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(out, dir+",0,0,n/a,n/a,n/a,n/a\n") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRun_StatsMissingTarget(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	code, out, _ := invoke(t, "stats", "-t", missing, "-f", "csv", "-n")
	if code != exitOK {
		t.Fatalf("exit code %d", code)
	}
	// The missing target counts as discovered but is not scored.
	if !strings.Contains(out, missing+",1,0,n/a") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	root := tree(t)
	cfgPath := filepath.Join(t.TempDir(), "entropyscan.yaml")
	cfg := "scan:\n  format: csv\n  min_entropy: 1\n  excludes: [\"*.log\"]\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	code, out, stderr := invoke(t, "-config", cfgPath, "-log-format", "json", "scan", "-t", root)
	if code != exitOK {
		t.Fatalf("exit code %d, stderr: %s", code, stderr)
	}
	want := "-----Entropies-----\npath,entropy\n" + filepath.Join(root, "sub", "mix.bin") + ",2.000\n"
	if out != want {
		t.Errorf("output:\ngot  %q\nwant %q", out, want)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Errorf("json log output: %s", buf.String())
	}

	buf.Reset()
	logger, err = newLogger(&buf, "debug", "text")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("visible", "path", "/x")
	if !strings.Contains(buf.String(), "visible") || !strings.Contains(buf.String(), "/x") {
		t.Errorf("text log output: %s", buf.String())
	}
}

func TestRun_ServeBadAlertRule(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "entropyscan.yaml")
	cfg := "server:\n  alerts:\n    rules:\n      - name: broken\n        condition: \"speed > 1\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	code, _, _ := invoke(t, "-config", cfgPath, "serve", "-t", t.TempDir())
	if code != exitUsage {
		t.Errorf("exit code: got %d, want %d", code, exitUsage)
	}
}

// startServe runs the serve command on a free local port until the test
// ends and returns the base URL once the API answers.
func startServe(t *testing.T, args ...string) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		var stdout, stderr bytes.Buffer
		done <- run(ctx, append(args, "-addr", addr), &stdout, &stderr)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case code := <-done:
			if code != exitOK {
				t.Errorf("exit code after shutdown: got %d, want %d", code, exitOK)
			}
		case <-time.After(10 * time.Second):
			t.Error("serve did not stop after cancel")
		}
	})

	base := "http://" + addr
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/api/v1/health")
		if err == nil {
			resp.Body.Close()
			return base
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestRun_Serve(t *testing.T) {
	root := tree(t)
	base := startServe(t, "serve", "-t", root)

	var s stats.Stats
	getJSON(t, base+"/api/v1/stats", &s)
	if s.Target != root || s.Total != 3 || s.Scored != 3 {
		t.Errorf("stats: got %+v", s)
	}
}

func TestRun_ServeReloadKeepsFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	// Every byte value twice: 16 bits over two 256-byte chunks, 8 as one chunk.
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(dir, "all.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(t.TempDir(), "entropyscan.yaml")
	if err := os.WriteFile(cfgPath, []byte("scan:\n  detect_content_type: false\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	base := startServe(t, "-config", cfgPath, "serve", "-t", dir, "-chunk-size", "256")

	var files []entropy.FileEntropy
	getJSON(t, base+"/api/v1/files", &files)
	if len(files) != 1 || files[0].Entropy != 16 {
		t.Fatalf("before reload: got %+v", files)
	}

	// Turning on content detection forces a rescore; the chunk size flag
	// must survive it.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := os.WriteFile(cfgPath, []byte("scan:\n  detect_content_type: true\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
		getJSON(t, base+"/api/v1/files", &files)
		if len(files) == 1 && files[0].ContentType != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("config reload never applied: %+v", files)
		}
	}
	if files[0].Entropy != 16 {
		t.Errorf("entropy after reload: got %v, want 16", files[0].Entropy)
	}
}
