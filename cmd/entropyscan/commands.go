package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/obsidianstack/entropyscan/internal/alerts"
	"github.com/obsidianstack/entropyscan/internal/api"
	"github.com/obsidianstack/entropyscan/internal/auth"
	"github.com/obsidianstack/entropyscan/internal/config"
	"github.com/obsidianstack/entropyscan/internal/discovery"
	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/report"
	"github.com/obsidianstack/entropyscan/internal/stats"
	"github.com/obsidianstack/entropyscan/internal/store"
	"github.com/obsidianstack/entropyscan/internal/watcher"
	"github.com/obsidianstack/entropyscan/internal/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown of serve.
const shutdownTimeout = 5 * time.Second

// scanFlags registers the flags shared by scan, stats and serve. Defaults
// come from cfg, so a flag only overrides the config when given.
func scanFlags(fs *flag.FlagSet, cfg *config.Config, withFormat bool) *string {
	target := fs.String("t", "", "target file or directory (required)")
	if withFormat {
		fs.StringVar(&cfg.Scan.Format, "f", cfg.Scan.Format, "output format: "+strings.Join(config.Formats, "|"))
	}
	fs.IntVar(&cfg.Scan.Workers, "w", cfg.Scan.Workers, "files scored concurrently")
	fs.BoolVar(&cfg.Scan.DetectContentType, "type", cfg.Scan.DetectContentType, "detect the content type of each file")
	fs.TextVar(&cfg.Scan.MaxFileSize, "max-size", cfg.Scan.MaxFileSize, "largest file to read (e.g. 2GiB)")
	fs.TextVar(&cfg.Scan.ChunkSize, "chunk-size", cfg.Scan.ChunkSize, "bytes per independently scored chunk")
	fs.Func("x", "exclude glob, relative to the target (repeatable)", func(s string) error {
		cfg.Scan.Excludes = append(cfg.Scan.Excludes, s)
		return nil
	})
	return target
}

// parseFlags parses a subcommand and validates the resulting config.
func parseFlags(fs *flag.FlagSet, args []string, cfg *config.Config, target *string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if *target == "" {
		return fmt.Errorf("%w: -t TARGET is required", errUsage)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// flagOverrides returns a function that copies the calculator settings given
// on the command line onto a reloaded config, so that flags keep overriding
// the file after a reload.
func flagOverrides(fs *flag.FlagSet, cfg *config.Config) func(*config.Config) {
	given := cfg.Scan
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return func(c *config.Config) {
		if set["max-size"] {
			c.Scan.MaxFileSize = given.MaxFileSize
		}
		if set["chunk-size"] {
			c.Scan.ChunkSize = given.ChunkSize
		}
		if set["type"] {
			c.Scan.DetectContentType = given.DetectContentType
		}
	}
}

func newCalculator(cfg *config.Config) *entropy.Calculator {
	return entropy.NewCalculator(entropy.Options{
		MaxFileSize:       int64(cfg.Scan.MaxFileSize),
		ChunkSize:         int(cfg.Scan.ChunkSize),
		DetectContentType: cfg.Scan.DetectContentType,
	})
}

// collect discovers and scores the files under target.
func collect(ctx context.Context, cfg *config.Config, target string) ([]string, entropy.CollectResult, error) {
	paths, err := discovery.Collect(target, discovery.Options{Excludes: cfg.Scan.Excludes})
	if err != nil {
		return nil, entropy.CollectResult{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	res := entropy.Collect(ctx, newCalculator(cfg), paths, cfg.Scan.Workers)
	if err := ctx.Err(); err != nil {
		return nil, entropy.CollectResult{}, err
	}
	if len(res.Skipped) > 0 {
		slog.Warn("some files could not be scored",
			"target", target, "skipped", len(res.Skipped), "discovered", len(paths))
	}
	return paths, res, nil
}

func runScan(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := scanFlags(fs, cfg, true)
	fs.Float64Var(&cfg.Scan.MinEntropy, "m", cfg.Scan.MinEntropy, "minimum entropy to display")
	if err := parseFlags(fs, args, cfg, target); err != nil {
		return err
	}

	_, res, err := collect(ctx, cfg, *target)
	if err != nil {
		return err
	}
	files := stats.FilterMinEntropy(res.Entropies, cfg.Scan.MinEntropy)
	return report.WriteEntropies(stdout, cfg.Scan.Format, files,
		report.EntropyOptions{ShowType: cfg.Scan.DetectContentType})
}

func runStats(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := scanFlags(fs, cfg, true)
	noOutliers := fs.Bool("n", false, "do not print outliers")
	if err := parseFlags(fs, args, cfg, target); err != nil {
		return err
	}

	paths, res, err := collect(ctx, cfg, *target)
	if err != nil {
		return err
	}
	st, ok := stats.Summarize(*target, len(paths), res.Entropies)
	if !ok {
		slog.Warn("no files could be scored", "target", *target, "discovered", len(paths))
	}

	var outliers []entropy.FileEntropy
	if !*noOutliers {
		if outliers, ok = stats.Outliers(res.Entropies); !ok {
			outliers = []entropy.FileEntropy{}
		}
	}
	return report.WriteStats(stdout, cfg.Scan.Format, st, outliers)
}

func runServe(ctx context.Context, cfg *config.Config, configPath string, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := scanFlags(fs, cfg, false)
	addr := fs.String("addr", fmt.Sprintf(":%d", cfg.Server.HTTPPort), "HTTP listen address")
	if err := parseFlags(fs, args, cfg, target); err != nil {
		return err
	}

	eng, err := alerts.New(cfg.Server.Alerts)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	st := store.New()
	w, err := watcher.New(*target, newCalculator(cfg), st,
		discovery.Options{Excludes: cfg.Scan.Excludes}, cfg.Scan.Workers)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := w.Resync(ctx); err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			slog.Error("file watcher stopped", "err", err)
		}
	}()

	// Rescore everything when the calculator settings change on disk.
	// Excludes and server settings need a restart.
	if configPath != "" {
		current := cfg.Scan
		pin := flagOverrides(fs, cfg)
		go func() {
			err := config.Watch(ctx, configPath, func(updated *config.Config) {
				pin(updated)
				next := updated.Scan
				if next.ChunkSize == current.ChunkSize &&
					next.MaxFileSize == current.MaxFileSize &&
					next.DetectContentType == current.DetectContentType {
					return
				}
				current = next
				slog.Info("scan settings changed, rescoring",
					"chunk_size", next.ChunkSize, "max_file_size", next.MaxFileSize)
				w.SetCalculator(newCalculator(updated))
				if err := w.Resync(ctx); err != nil {
					slog.Error("rescore failed", "err", err)
				}
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	hub := ws.New(st, *target, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)
	go eng.Run(ctx, st, *target, cfg.Server.BroadcastInterval)

	handler := api.New(st, *target, eng)
	mux := http.NewServeMux()
	mux.Handle("/api/", handler)
	mux.Handle("/metrics", handler)
	mux.Handle("/ws/stream", hub)

	requireKey := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)
	if cfg.Server.Auth.Mode == "apikey" && cfg.Server.Auth.Key() == "" {
		slog.Warn("auth mode is apikey but no key is set, requests are not authenticated",
			"key_env", cfg.Server.Auth.KeyEnv)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           requireKey(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", *addr, "target", *target)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("entropyscan shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
