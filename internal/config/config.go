package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "config.json"

// Front matter policies.
const (
	FrontMatterOptional = "optional"
	FrontMatterRequired = "required"
)

// Config is the fully resolved site configuration. It is read-only once a
// build starts.
type Config struct {
	ContentDir   string        `yaml:"content_dir"`
	OutputDir    string        `yaml:"output_dir"`
	SiteTitle    string        `yaml:"site_title,omitempty"`
	Username     string        `yaml:"username,omitempty"` // legacy alias for SiteTitle
	Intro        string        `yaml:"intro,omitempty"`
	FrontMatter  string        `yaml:"front_matter,omitempty"`
	TemplatesDir string        `yaml:"templates_dir,omitempty"`
	Build        BuildConfig   `yaml:"build,omitempty"`
	Preview      PreviewConfig `yaml:"preview,omitempty"`
	Metrics      MetricsConfig `yaml:"metrics,omitempty"`
}

// BuildConfig tunes the build pipeline.
type BuildConfig struct {
	// Workers bounds concurrent document conversion; 0 means one per CPU.
	Workers     int  `yaml:"workers,omitempty"`
	VerifyLinks bool `yaml:"verify_links,omitempty"`
	// RewriteMarkdownLinks turns relative links to .md files into .html links. Defaults to true.
	RewriteMarkdownLinks        *bool `yaml:"rewrite_markdown_links,omitempty"`
	MaxConsecutiveWriteFailures int   `yaml:"max_consecutive_write_failures,omitempty"`
	// WriteRetries is how often a failed page write is retried before the
	// document is reported as a write failure.
	WriteRetries      int           `yaml:"write_retries,omitempty"`
	WriteRetryDelay   time.Duration `yaml:"write_retry_delay,omitempty"`
	WriteRetryBackoff string        `yaml:"write_retry_backoff,omitempty"` // fixed|linear|exponential
}

// PreviewConfig configures the dev server and watcher.
type PreviewConfig struct {
	Host         string        `yaml:"host,omitempty"`
	Port         int           `yaml:"port,omitempty"`
	Debounce     time.Duration `yaml:"debounce,omitempty"`
	RebuildEvery time.Duration `yaml:"rebuild_every,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint on the preview server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// RewriteLinks reports whether relative .md links are rewritten to .html.
func (b BuildConfig) RewriteLinks() bool {
	return b.RewriteMarkdownLinks == nil || *b.RewriteMarkdownLinks
}

// Addr returns the preview listen address.
func (p PreviewConfig) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Default returns a configuration populated with the stock defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML or JSON configuration file, expands ${VAR} references
// from the environment (after loading .env files) and applies defaults.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not loaded: %v\n", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (run 'gongjeon init' first)", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes configuration bytes. JSON is accepted since it is valid YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ContentDir == "" {
		c.ContentDir = "content"
	}
	if c.OutputDir == "" {
		c.OutputDir = "public"
	}
	if c.SiteTitle == "" {
		c.SiteTitle = c.Username
	}
	if c.SiteTitle == "" {
		c.SiteTitle = "John Doe"
	}
	if c.Intro == "" {
		c.Intro = "This is an intro..."
	}
	c.FrontMatter = strings.ToLower(strings.TrimSpace(c.FrontMatter))
	if c.FrontMatter == "" {
		c.FrontMatter = FrontMatterOptional
	}
	if c.Build.MaxConsecutiveWriteFailures == 0 {
		c.Build.MaxConsecutiveWriteFailures = 3
	}
	if c.Build.WriteRetryDelay == 0 {
		c.Build.WriteRetryDelay = 50 * time.Millisecond
	}
	c.Build.WriteRetryBackoff = strings.ToLower(strings.TrimSpace(c.Build.WriteRetryBackoff))
	if c.Build.WriteRetryBackoff == "" {
		c.Build.WriteRetryBackoff = "linear"
	}
	if c.Preview.Host == "" {
		c.Preview.Host = "127.0.0.1"
	}
	if c.Preview.Port == 0 {
		c.Preview.Port = 8080
	}
	if c.Preview.Debounce == 0 {
		c.Preview.Debounce = 300 * time.Millisecond
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Init writes cfg to configPath. The encoding follows the file extension:
// .json writes JSON, anything else YAML.
func Init(configPath string, cfg *Config, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, configPath)
	}
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if strings.ToLower(filepath.Ext(configPath)) == ".json" {
		if data, err = yamlToJSON(data); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// yamlToJSON re-encodes YAML output as JSON so durations stay in their
// string form ("300ms"), which is what Load expects.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
