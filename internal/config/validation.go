package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrConfigExists   = errors.New("configuration file already exists")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Validate checks the configuration for values the build cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ContentDir) == "" {
		return fmt.Errorf("%w: content_dir is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("%w: output_dir is required", ErrInvalidConfig)
	}
	if err := validatePaths(c.ContentDir, c.OutputDir); err != nil {
		return err
	}
	switch c.FrontMatter {
	case FrontMatterOptional, FrontMatterRequired:
	default:
		return fmt.Errorf("%w: front_matter must be %q or %q, got %q", ErrInvalidConfig, FrontMatterOptional, FrontMatterRequired, c.FrontMatter)
	}
	if c.Build.Workers < 0 {
		return fmt.Errorf("%w: build.workers must be >= 0", ErrInvalidConfig)
	}
	if c.Build.MaxConsecutiveWriteFailures < 0 {
		return fmt.Errorf("%w: build.max_consecutive_write_failures must be >= 0", ErrInvalidConfig)
	}
	if c.Build.WriteRetries < 0 || c.Build.WriteRetryDelay < 0 {
		return fmt.Errorf("%w: build.write_retries and build.write_retry_delay must not be negative", ErrInvalidConfig)
	}
	switch c.Build.WriteRetryBackoff {
	case "", "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("%w: build.write_retry_backoff must be fixed, linear or exponential, got %q", ErrInvalidConfig, c.Build.WriteRetryBackoff)
	}
	if c.Preview.Port < 0 || c.Preview.Port > 65535 {
		return fmt.Errorf("%w: preview.port out of range: %d", ErrInvalidConfig, c.Preview.Port)
	}
	if c.Preview.Debounce < 0 || c.Preview.RebuildEvery < 0 {
		return fmt.Errorf("%w: preview durations must not be negative", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics.path must start with '/'", ErrInvalidConfig)
	}
	return nil
}

// validatePaths rejects layouts where one tree contains the other: the output
// tree is replaced wholesale on every build.
func validatePaths(contentDir, outputDir string) error {
	content, err := filepath.Abs(contentDir)
	if err != nil {
		return fmt.Errorf("%w: resolve content_dir: %w", ErrInvalidConfig, err)
	}
	output, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("%w: resolve output_dir: %w", ErrInvalidConfig, err)
	}
	if content == output {
		return fmt.Errorf("%w: content_dir and output_dir must differ", ErrInvalidConfig)
	}
	if within(output, content) {
		return fmt.Errorf("%w: output_dir must not be inside content_dir", ErrInvalidConfig)
	}
	if within(content, output) {
		return fmt.Errorf("%w: content_dir must not be inside output_dir", ErrInvalidConfig)
	}
	return nil
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
