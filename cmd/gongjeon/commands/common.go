package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/gongjeon/internal/config"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
)

// Global carries process-wide state into subcommands.
type Global struct {
	Context context.Context
	Logger  *slog.Logger
	Out     io.Writer
}

func (g *Global) ctx() context.Context {
	if g == nil || g.Context == nil {
		return context.Background()
	}
	return g.Context
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (JSON or YAML)" default:"config.json" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init     InitCmd     `cmd:"" help:"Write a new configuration file"`
	Build    BuildCmd    `cmd:"" help:"Build the site once"`
	Dev      DevCmd      `cmd:"" help:"Build, serve and rebuild on content changes"`
	Discover DiscoverCmd `cmd:"" help:"List the Markdown sources a build would render"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(c.Verbose)}))
	slog.SetDefault(logger)
	return nil
}

// parseLogLevel honors --verbose first, then GONGJEON_LOG_LEVEL.
func parseLogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("GONGJEON_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PathOverrides are the content/output flags shared by several commands.
type PathOverrides struct {
	Content string `name:"content" help:"Override content_dir from the configuration"`
	Output  string `short:"o" name:"output" help:"Override output_dir from the configuration"`
}

func (p PathOverrides) apply(cfg *config.Config) error {
	if p.Content == "" && p.Output == "" {
		return nil
	}
	if p.Content != "" {
		cfg.ContentDir = p.Content
	}
	if p.Output != "" {
		cfg.OutputDir = p.Output
	}
	if err := cfg.Validate(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid path override").Build()
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		category := ferrors.CategoryConfig
		if errors.Is(err, config.ErrConfigNotFound) {
			category = ferrors.CategoryNotFound
		}
		return nil, ferrors.WrapError(err, category, "failed to load configuration").
			Fatal().
			WithContext("path", path).
			Build()
	}
	return cfg, nil
}
