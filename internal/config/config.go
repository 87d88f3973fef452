// Package config loads and validates docpress configuration from YAML plus
// optional .env files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for docpress.
type Config struct {
	// UploadsDir is the root under which per-instance working directories are
	// created (uploads/contents/<code>/).
	UploadsDir string `yaml:"uploads_dir"`

	// LayoutsDir holds template bundles, one subdirectory per layout slug.
	LayoutsDir string `yaml:"layouts_dir"`

	// DatabasePath is the SQLite database file (":memory:" for tests).
	DatabasePath string `yaml:"database_path"`

	Renderer RendererConfig `yaml:"renderer"`
	Assets   AssetsConfig   `yaml:"assets"`
	Queue    QueueConfig    `yaml:"queue"`
	Events   EventsConfig   `yaml:"events,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
	Layouts  LayoutsConfig  `yaml:"layouts,omitempty"`
}

// RendererConfig controls the external typesetting invocation.
type RendererConfig struct {
	// Binary is the typesetting entrypoint (default "pandoc").
	Binary string `yaml:"binary,omitempty"`
	// Engine is the PDF engine handed to pandoc (default "xelatex").
	Engine string `yaml:"engine,omitempty"`
	// Timeout bounds a single render invocation ("5m", "90s"). Empty or zero
	// disables the bound and a hung renderer blocks the build indefinitely.
	Timeout string `yaml:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout; invalid or empty values yield 0 (no bound).
func (r RendererConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// AssetsConfig controls signed asset URL generation.
type AssetsConfig struct {
	// BaseURL is the externally reachable prefix for asset files.
	BaseURL string `yaml:"base_url,omitempty"`
	// SigningSecret keys the HMAC over asset URLs. Loaded from the
	// DOCPRESS_SIGNING_SECRET environment variable when empty.
	SigningSecret string `yaml:"signing_secret,omitempty"`
	// URLTTL is the validity window for signed URLs ("15m").
	URLTTL string `yaml:"url_ttl,omitempty"`
}

// URLTTLDuration parses URLTTL, falling back to 15 minutes.
func (a AssetsConfig) URLTTLDuration() time.Duration {
	d, err := time.ParseDuration(a.URLTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// QueueConfig tunes the build queue.
type QueueConfig struct {
	Workers int `yaml:"workers,omitempty"`
	MaxSize int `yaml:"max_size,omitempty"`
}

// EventsConfig configures NATS lifecycle event publishing (disabled when URL empty).
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig configures the Prometheus exposition endpoint in serve mode.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
}

// LayoutsConfig configures synchronization of the layout bundle repository.
type LayoutsConfig struct {
	// RepoURL, when set, lets `docpress sync-layouts` clone or pull bundles.
	RepoURL string `yaml:"repo_url,omitempty"`
	Branch  string `yaml:"branch,omitempty"`
	// SyncInterval drives scheduled re-sync in serve mode ("30m"); empty disables it.
	SyncInterval string `yaml:"sync_interval,omitempty"`
}

// SyncIntervalDuration parses SyncInterval; invalid or empty values yield 0 (disabled).
func (l LayoutsConfig) SyncIntervalDuration() time.Duration {
	d, err := time.ParseDuration(l.SyncInterval)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// Load reads a configuration file, merges .env variables, and applies defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles merges .env/.env.local into the process environment without
// overriding variables that are already set.
func loadEnvFiles() {
	for _, p := range []string{".env", ".env.local"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.UploadsDir == "" {
		c.UploadsDir = "uploads"
	}
	if c.LayoutsDir == "" {
		c.LayoutsDir = "layouts"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "docpress.db"
	}
	if c.Renderer.Binary == "" {
		c.Renderer.Binary = "pandoc"
	}
	if c.Renderer.Engine == "" {
		c.Renderer.Engine = "xelatex"
	}
	if c.Assets.URLTTL == "" {
		c.Assets.URLTTL = "15m"
	}
	if c.Assets.SigningSecret == "" {
		c.Assets.SigningSecret = os.Getenv("DOCPRESS_SIGNING_SECRET")
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.MaxSize <= 0 {
		c.Queue.MaxSize = 100
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "docpress.builds"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9290"
	}
	if c.Layouts.Branch == "" {
		c.Layouts.Branch = "main"
	}
}

func (c *Config) validate() error {
	if c.UploadsDir == "" {
		return fmt.Errorf("uploads_dir must not be empty")
	}
	if c.LayoutsDir == "" {
		return fmt.Errorf("layouts_dir must not be empty")
	}
	return nil
}

// defaultConfigTemplate is written by Init as a starting point.
const defaultConfigTemplate = `# docpress configuration
uploads_dir: uploads
layouts_dir: layouts
database_path: docpress.db

renderer:
  binary: pandoc
  engine: xelatex
  timeout: 5m

assets:
  base_url: http://localhost:4000/assets
  url_ttl: 15m
  # signing_secret: set DOCPRESS_SIGNING_SECRET instead of committing a secret

queue:
  workers: 2
  max_size: 100

# events:
#   nats_url: nats://localhost:4222
#   subject: docpress.builds

metrics:
  enabled: false
  listen: ":9290"

# layouts:
#   repo_url: https://example.com/org/layout-bundles.git
#   branch: main
#   sync_interval: 30m
`

// Init writes a starter configuration file. It refuses to overwrite an
// existing file unless force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
