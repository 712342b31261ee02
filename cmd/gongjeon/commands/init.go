package commands

import (
	"errors"
	"fmt"
	"os"

	"git.home.luguber.info/inful/gongjeon/internal/config"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
)

// InitCmd implements the 'init' command. Flags stand in for interactive
// prompts; anything left unset takes the stock default.
type InitCmd struct {
	Force       bool   `help:"Overwrite existing configuration file"`
	Content     string `name:"content" help:"Content directory" default:"content"`
	Output      string `short:"o" name:"output" help:"Output directory" default:"public"`
	Title       string `name:"title" help:"Site title shown in the header" default:"John Doe"`
	Intro       string `name:"intro" help:"Introduction shown on the index page" default:"This is an intro..."`
	FrontMatter string `name:"front-matter" help:"Front matter policy (optional|required)" default:"optional" enum:"optional,required"`
	Scaffold    bool   `name:"scaffold" help:"Also create the content directory" default:"true" negatable:""`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	cfg := config.Default()
	cfg.ContentDir = i.Content
	cfg.OutputDir = i.Output
	cfg.SiteTitle = i.Title
	cfg.Intro = i.Intro
	cfg.FrontMatter = i.FrontMatter

	out := g.out()
	_, _ = fmt.Fprintf(out, "Writing configuration to %s\n", root.Config)
	if err := config.Init(root.Config, cfg, i.Force); err != nil {
		category := ferrors.CategoryConfig
		if errors.Is(err, config.ErrInvalidConfig) {
			category = ferrors.CategoryValidation
		}
		return ferrors.WrapError(err, category, "initialization failed").WithContext("path", root.Config).Build()
	}
	if i.Scaffold {
		if err := os.MkdirAll(cfg.ContentDir, 0o755); err != nil {
			return ferrors.FileSystemError("failed to create content directory").
				WithCause(err).
				WithContext("path", cfg.ContentDir).
				Build()
		}
	}
	_, _ = fmt.Fprintln(out, "Initialized successfully. Run 'gongjeon dev' to start the preview server.")
	return nil
}
