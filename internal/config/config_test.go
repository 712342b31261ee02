package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_LegacyJSONConfig(t *testing.T) {
	data := []byte(`{"content_dir":"content","output_dir":"public","username":"Jane","intro":"Hello there"}`)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "content", cfg.ContentDir)
	assert.Equal(t, "public", cfg.OutputDir)
	assert.Equal(t, "Jane", cfg.SiteTitle, "username is an alias for site_title")
	assert.Equal(t, "Hello there", cfg.Intro)
	assert.Equal(t, FrontMatterOptional, cfg.FrontMatter)
}

func TestParse_YAMLWithNestedSections(t *testing.T) {
	data := []byte(`
content_dir: posts
output_dir: dist
site_title: My Site
front_matter: Required
build:
  workers: 2
  verify_links: true
  rewrite_markdown_links: false
  write_retries: 2
  write_retry_backoff: Exponential
preview:
  port: 9000
  debounce: 150ms
  rebuild_every: 10m
metrics:
  enabled: true
`)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, FrontMatterRequired, cfg.FrontMatter)
	assert.Equal(t, 2, cfg.Build.Workers)
	assert.True(t, cfg.Build.VerifyLinks)
	assert.False(t, cfg.Build.RewriteLinks())
	assert.Equal(t, 3, cfg.Build.MaxConsecutiveWriteFailures)
	assert.Equal(t, 2, cfg.Build.WriteRetries)
	assert.Equal(t, "exponential", cfg.Build.WriteRetryBackoff)
	assert.Equal(t, 50*time.Millisecond, cfg.Build.WriteRetryDelay)
	assert.Equal(t, 150*time.Millisecond, cfg.Preview.Debounce)
	assert.Equal(t, 10*time.Minute, cfg.Preview.RebuildEvery)
	assert.Equal(t, "127.0.0.1:9000", cfg.Preview.Addr())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "content", cfg.ContentDir)
	assert.Equal(t, "public", cfg.OutputDir)
	assert.Equal(t, "John Doe", cfg.SiteTitle)
	assert.True(t, cfg.Build.RewriteLinks())
	assert.Equal(t, 300*time.Millisecond, cfg.Preview.Debounce)
	assert.Zero(t, cfg.Build.WriteRetries)
	assert.Equal(t, "linear", cfg.Build.WriteRetryBackoff)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"same dirs", func(c *Config) { c.OutputDir = c.ContentDir }},
		{"output inside content", func(c *Config) { c.OutputDir = filepath.Join(c.ContentDir, "public") }},
		{"content inside output", func(c *Config) { c.ContentDir = filepath.Join(c.OutputDir, "content") }},
		{"bad policy", func(c *Config) { c.FrontMatter = "sometimes" }},
		{"negative workers", func(c *Config) { c.Build.Workers = -1 }},
		{"port range", func(c *Config) { c.Preview.Port = 70000 }},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"negative retries", func(c *Config) { c.Build.WriteRetries = -1 }},
		{"retry backoff", func(c *Config) { c.Build.WriteRetryBackoff = "random" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidate_SiblingWithSharedPrefixIsAllowed(t *testing.T) {
	cfg := Default()
	cfg.ContentDir = "site"
	cfg.OutputDir = "site-public"
	require.NoError(t, cfg.Validate())
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("GONGJEON_TEST_TITLE", "From Env")
	require.NoError(t, os.WriteFile(path, []byte("content_dir: c\noutput_dir: o\nsite_title: ${GONGJEON_TEST_TITLE}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "From Env", cfg.SiteTitle)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInit_WritesLoadableJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"config.json", "config.yaml"} {
		path := filepath.Join(dir, name)
		cfg := Default()
		cfg.SiteTitle = "Init Test"
		require.NoError(t, Init(path, cfg, false))

		loaded, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, "Init Test", loaded.SiteTitle, name)
		assert.Equal(t, cfg.Preview.Debounce, loaded.Preview.Debounce, name)

		err = Init(path, cfg, false)
		require.ErrorIs(t, err, ErrConfigExists)
		require.NoError(t, Init(path, cfg, true))
	}
}
