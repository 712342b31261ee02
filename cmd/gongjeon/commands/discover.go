package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/gongjeon/internal/docs"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
	"git.home.luguber.info/inful/gongjeon/internal/paths"
)

// DiscoverCmd lists Markdown sources and the URLs they would be written to.
type DiscoverCmd struct {
	PathOverrides `embed:""`
}

func (d *DiscoverCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	if err := d.apply(cfg); err != nil {
		return err
	}

	discovery := docs.NewDiscovery(cfg.ContentDir)
	files, err := discovery.Discover()
	if err != nil {
		return ferrors.ConfigError("content discovery failed").
			WithCause(err).
			WithContext("path", cfg.ContentDir).
			Build()
	}

	out := g.out()
	outputRoot, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return ferrors.FileSystemError("resolve output directory").WithCause(err).Build()
	}
	for _, f := range files {
		target, err := paths.MapOutput(f.Path, discovery.Root(), outputRoot)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%s\t(error: %v)\n", f.RelativePath, err)
			continue
		}
		url, err := paths.URL(target, outputRoot)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%s\t(error: %v)\n", f.RelativePath, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", f.RelativePath, url)
	}
	for _, w := range discovery.Warnings() {
		_, _ = fmt.Fprintf(out, "warning: %v\n", w)
	}
	_, _ = fmt.Fprintf(out, "%d document(s) found in %s\n", len(files), cfg.ContentDir)
	return nil
}
