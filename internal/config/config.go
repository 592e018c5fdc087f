package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/entropyscan/internal/entropy"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultMaxFileSize       = ByteSize(entropy.DefaultMaxFileSize)
	DefaultChunkSize         = ByteSize(entropy.DefaultChunkSize)
	DefaultFormat            = "table"
	DefaultWorkers           = 1
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultAuthHeader        = "x-api-key"
)

// Formats lists the accepted output formats.
var Formats = []string{"table", "csv", "json", "prom"}

// Config is the top-level configuration.
type Config struct {
	Scan   ScanConfig   `yaml:"scan"`
	Server ServerConfig `yaml:"server"`
}

// ScanConfig holds the settings shared by every subcommand.
type ScanConfig struct {
	// MaxFileSize is the largest file that will be read. Accepts "2GiB",
	// "512 MB" or a plain byte count.
	MaxFileSize ByteSize `yaml:"max_file_size" env:"ENTROPYSCAN_MAX_FILE_SIZE"`

	// ChunkSize is the slice size scored independently.
	ChunkSize ByteSize `yaml:"chunk_size" env:"ENTROPYSCAN_CHUNK_SIZE"`

	// MinEntropy hides files scoring below it in scan output.
	MinEntropy float64 `yaml:"min_entropy" env:"ENTROPYSCAN_MIN_ENTROPY"`

	// Format is one of: table | csv | json | prom.
	Format string `yaml:"format" env:"ENTROPYSCAN_FORMAT"`

	// Workers is the number of files scored concurrently.
	Workers int `yaml:"workers" env:"ENTROPYSCAN_WORKERS"`

	// DetectContentType adds the sniffed MIME type to each result.
	DetectContentType bool `yaml:"detect_content_type" env:"ENTROPYSCAN_DETECT_CONTENT_TYPE"`

	// Excludes are glob patterns skipped during discovery.
	Excludes []string `yaml:"excludes" env:"ENTROPYSCAN_EXCLUDES" envSeparator:","`
}

// ServerConfig holds the settings used by the serve subcommand.
type ServerConfig struct {
	// HTTPPort is the port the REST API, /metrics and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port" env:"ENTROPYSCAN_HTTP_PORT"`

	// BroadcastInterval is how often WebSocket clients receive a snapshot.
	BroadcastInterval time.Duration `yaml:"broadcast_interval" env:"ENTROPYSCAN_BROADCAST_INTERVAL"`

	// Auth configures how the server authenticates HTTP clients.
	Auth AuthConfig `yaml:"auth"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is "field operator value", e.g. "mean > 7.5",
	// "outliers > 0" or "file_entropy >= 7.99".
	Condition string `yaml:"condition"`

	// Severity is one of: info | warning | critical. Defaults to warning.
	Severity string `yaml:"severity"`

	// Cooldown is the minimum time between two firings of the same rule
	// for the same subject. Defaults to 15m.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" env:"ENTROPYSCAN_AUTH_MODE"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// ByteSize is a byte count written in humanized form in config files and
// environment variables.
type ByteSize int64

// UnmarshalText parses "2GiB", "2.5 MB" or "2560000".
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("byte size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalText renders the size in IEC units.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Load reads and parses the YAML config file at path, then applies
// ENTROPYSCAN_* environment overrides. An empty path skips the file.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}
	return decode(data)
}

// decode builds a Config from raw YAML: defaults, the document, the
// environment, then validation.
func decode(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as empty. It is
// used for the default config location.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Load("")
	}
	return Load(path)
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Scan: ScanConfig{
			MaxFileSize: DefaultMaxFileSize,
			ChunkSize:   DefaultChunkSize,
			Format:      DefaultFormat,
			Workers:     DefaultWorkers,
		},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
	}
}

// Validate checks structural constraints. The CLI calls it again after
// applying flag overrides.
func Validate(cfg *Config) error {
	if cfg.Scan.MaxFileSize <= 0 {
		return fmt.Errorf("scan.max_file_size must be positive")
	}
	if cfg.Scan.ChunkSize <= 0 {
		return fmt.Errorf("scan.chunk_size must be positive")
	}
	if cfg.Scan.MinEntropy < 0 {
		return fmt.Errorf("scan.min_entropy must not be negative")
	}
	if !slices.Contains(Formats, cfg.Scan.Format) {
		return fmt.Errorf("scan.format %q unknown: want %s", cfg.Scan.Format, strings.Join(Formats, "|"))
	}
	if cfg.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1")
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	return validateAlerts(cfg.Server.Alerts)
}

func validateAlerts(a AlertsConfig) error {
	seen := make(map[string]bool, len(a.Rules))
	for i, r := range a.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("server.alerts.rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d] (%s): condition is required", i, r.Name)
		}
		switch r.Severity {
		case "", "info", "warning", "critical":
		default:
			return fmt.Errorf("server.alerts.rules[%d] (%s): severity %q unknown", i, r.Name, r.Severity)
		}
		if r.Cooldown < 0 {
			return fmt.Errorf("server.alerts.rules[%d] (%s): cooldown must not be negative", i, r.Name)
		}
	}
	for i, w := range a.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}
