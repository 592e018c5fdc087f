// Command entropyscan scores files by Shannon entropy and reports
// statistics and outliers across a file tree.
//
//	entropyscan [-config FILE] [-log-level LEVEL] [-log-format text|json] COMMAND [flags]
//
// Commands: scan, stats, serve, version.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	charmlog "github.com/charmbracelet/log"

	"github.com/obsidianstack/entropyscan/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// defaultConfigFile is read when present and no -config flag is given.
const defaultConfigFile = "entropyscan.yaml"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// errUsage marks errors caused by bad invocation rather than by the scan.
var errUsage = errors.New("usage error")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("entropyscan", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { usage(global) }
	configPath := global.String("config", "", "path to config file (default ./"+defaultConfigFile+" if present)")
	logLevel := global.String("log-level", "info", "log level: debug|info|warn|error")
	logFormat := global.String("log-format", "text", "log format: text|json")

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger, err := newLogger(stderr, *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(stderr, "entropyscan: %v\n", err)
		return exitUsage
	}
	slog.SetDefault(logger)

	rest := global.Args()
	if len(rest) == 0 {
		usage(global)
		return exitUsage
	}

	var cfg *config.Config
	if *configPath == "" {
		cfg, err = config.LoadOptional(defaultConfigFile)
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "err", err)
		return exitFailure
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "scan":
		err = runScan(ctx, cfg, cmdArgs, stdout, stderr)
	case "stats":
		err = runStats(ctx, cfg, cmdArgs, stdout, stderr)
	case "serve":
		err = runServe(ctx, cfg, *configPath, cmdArgs, stderr)
	case "version":
		fmt.Fprintf(stdout, "entropyscan %s\n", version)
		return exitOK
	default:
		fmt.Fprintf(stderr, "entropyscan: unknown command %q\n", cmd)
		usage(global)
		return exitUsage
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "entropyscan %s: %v\n", cmd, err)
		return exitUsage
	default:
		slog.Error(cmd+" failed", "err", err)
		return exitFailure
	}
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: entropyscan [global flags] <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  scan     score every file under a target")
	fmt.Fprintln(out, "  stats    summarize scores and list outliers")
	fmt.Fprintln(out, "  serve    keep scores current and serve them over HTTP")
	fmt.Fprintln(out, "  version  print the version")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "global flags:")
	fs.PrintDefaults()
}

// newLogger builds the process logger. Text output goes through
// charmbracelet/log; json uses the standard slog JSON handler.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	switch strings.ToLower(format) {
	case "text":
		lvl, err := charmlog.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid -log-level %q", level)
		}
		return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
			Level:           lvl,
			ReportTimestamp: true,
		})), nil
	case "json":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid -log-level %q", level)
		}
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	default:
		return nil, fmt.Errorf("invalid -log-format %q: want text|json", format)
	}
}
