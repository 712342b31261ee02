package commands

import (
	"log/slog"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/gongjeon/internal/build"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
	"git.home.luguber.info/inful/gongjeon/internal/logfields"
	"git.home.luguber.info/inful/gongjeon/internal/metrics"
	"git.home.luguber.info/inful/gongjeon/internal/preview"
)

// DevCmd builds the site, serves it and rebuilds on changes.
type DevCmd struct {
	PathOverrides `embed:""`

	Host         string `name:"host" help:"Override preview.host"`
	Port         int    `short:"p" name:"port" help:"Override preview.port"`
	Metrics      bool   `name:"metrics" help:"Expose Prometheus metrics on the preview server"`
	RebuildEvery string `name:"rebuild-every" help:"Override preview.rebuild_every (e.g. 10m, 0 to disable)"`
}

func (d *DevCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	if err := d.apply(cfg); err != nil {
		return err
	}
	if d.Host != "" {
		cfg.Preview.Host = d.Host
	}
	if d.Port > 0 {
		cfg.Preview.Port = d.Port
	}
	if d.Metrics {
		cfg.Metrics.Enabled = true
	}
	if d.RebuildEvery != "" {
		every, err := parseInterval(d.RebuildEvery)
		if err != nil {
			return err
		}
		cfg.Preview.RebuildEvery = every
	}

	var (
		recorder metrics.Recorder = metrics.NoopRecorder{}
		reg      *prom.Registry
	)
	if cfg.Metrics.Enabled {
		reg = prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
	}

	if removed, err := build.CleanStaleStaging(cfg.OutputDir); err == nil && len(removed) > 0 {
		slog.Info("Removed stale staging directories", logfields.Count(len(removed)))
	}
	builder, err := build.NewBuilder(cfg, build.WithRecorder(recorder))
	if err != nil {
		return err
	}
	coordinator := build.NewCoordinator(builder)
	defer coordinator.Stop()

	opts := preview.Options{Config: cfg, Rebuilder: coordinator, Recorder: recorder}
	if reg != nil {
		opts.Metrics = metrics.HTTPHandler(reg)
	}
	return preview.Run(g.ctx(), opts)
}

// parseInterval accepts Go durations; "0" disables the periodic rebuild.
func parseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, ferrors.ValidationError("invalid --rebuild-every value").
			WithCause(err).
			WithContext("value", s).
			Build()
	}
	return d, nil
}
