package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/gongjeon/internal/build"
	"git.home.luguber.info/inful/gongjeon/internal/config"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
	"git.home.luguber.info/inful/gongjeon/internal/logfields"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	PathOverrides `embed:""`

	Report      string `name:"report" help:"Write the JSON build report to this file" type:"path"`
	Workers     int    `name:"workers" help:"Concurrent document conversions (0 = one per CPU)"`
	VerifyLinks bool   `name:"verify-links" help:"Check internal links in the generated pages"`
	Strict      bool   `name:"strict" help:"Exit non-zero when any document fails"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	if err := b.apply(cfg); err != nil {
		return err
	}
	if b.Workers > 0 {
		cfg.Build.Workers = b.Workers
	}
	if b.VerifyLinks {
		cfg.Build.VerifyLinks = true
	}

	report, err := runBuild(g, cfg)
	if report != nil {
		_, _ = fmt.Fprintln(g.out(), report.Summary())
		for _, de := range report.DocumentErrors {
			_, _ = fmt.Fprintf(g.out(), "  %s\n", de)
		}
		for _, bl := range report.BrokenLinks {
			_, _ = fmt.Fprintf(g.out(), "  broken link: %s\n", bl)
		}
		if b.Report != "" {
			if perr := report.Persist(b.Report); perr != nil {
				slog.Warn("Failed to write build report", logfields.Path(b.Report), logfields.Error(perr))
			}
		}
	}
	if err != nil {
		return err
	}
	if b.Strict && len(report.DocumentErrors) > 0 {
		return ferrors.ContentError("documents failed to build").
			WithContext("failed_docs", len(report.DocumentErrors)).
			WithContext("build_id", report.BuildID).
			Build()
	}
	return nil
}

// runBuild clears staging leftovers from interrupted runs and builds once.
func runBuild(g *Global, cfg *config.Config, opts ...build.Option) (*build.Report, error) {
	if removed, err := build.CleanStaleStaging(cfg.OutputDir); err != nil {
		slog.Warn("Failed to clean stale staging directories", logfields.Error(err))
	} else if len(removed) > 0 {
		slog.Info("Removed stale staging directories", logfields.Count(len(removed)))
	}

	builder, err := build.NewBuilder(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return builder.Build(g.ctx())
}
