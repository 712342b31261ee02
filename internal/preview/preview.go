// Package preview serves the generated site locally and rebuilds it when the
// content tree changes.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/gongjeon/internal/build"
	"git.home.luguber.info/inful/gongjeon/internal/config"
	ferrors "git.home.luguber.info/inful/gongjeon/internal/foundation/errors"
	"git.home.luguber.info/inful/gongjeon/internal/logfields"
	"git.home.luguber.info/inful/gongjeon/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Trigger sources reported to the metrics recorder.
const (
	SourceManual   = "manual"
	SourceWatch    = "watch"
	SourceSchedule = "schedule"
)

// Rebuilder runs builds on request; build.Coordinator is the production one.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*build.Report, error)
	Last() *build.Report
}

// Options configures Run.
type Options struct {
	Config    *config.Config
	Rebuilder Rebuilder
	Recorder  metrics.Recorder
	// Metrics is mounted at Config.Metrics.Path when metrics are enabled.
	Metrics http.Handler
	// Ready, if set, receives the bound server address once serving starts.
	Ready func(addr string)
}

// Run performs an initial build, then serves the output directory and
// rebuilds on content changes and on the optional schedule until ctx is done.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if cfg == nil || opts.Rebuilder == nil {
		return ferrors.ValidationError("preview requires a config and a rebuilder").Build()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = opts.Metrics
	}
	srv, err := Listen(cfg.Preview.Addr(), NewHandler(ServerOptions{
		OutputDir:   cfg.OutputDir,
		LastReport:  opts.Rebuilder.Last,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Metrics.Path,
	}))
	if err != nil {
		return ferrors.RuntimeError("failed to bind preview server").
			WithCause(err).
			WithContext("addr", cfg.Preview.Addr()).
			Build()
	}

	triggers := newTriggerSet(runCtx, opts.Rebuilder, opts.Recorder)
	triggers.runNow(SourceManual)

	watcher, err := NewWatcher(cfg.ContentDir, cfg.Preview.Debounce, func() { triggers.fire(SourceWatch) })
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return ferrors.RuntimeError("failed to watch content directory").
			WithCause(err).
			WithContext("path", cfg.ContentDir).
			Build()
	}

	var sched *Scheduler
	if cfg.Preview.RebuildEvery > 0 {
		if sched, err = NewScheduler(); err == nil {
			_, err = sched.ScheduleEvery("periodic-rebuild", cfg.Preview.RebuildEvery, func() { triggers.fire(SourceSchedule) })
		}
		if err != nil {
			_ = watcher.Close()
			_ = srv.Shutdown(context.Background())
			return ferrors.RuntimeError("failed to schedule periodic rebuild").WithCause(err).Build()
		}
		sched.Start()
	}

	slog.Info("Preview server listening", logfields.Addr(srv.Addr()), logfields.Path(cfg.ContentDir))
	if opts.Ready != nil {
		opts.Ready(srv.Addr())
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(srv.Serve)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down preview server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown error", logfields.Error(err))
		}
		if sched != nil {
			if err := sched.Stop(); err != nil {
				slog.Warn("scheduler shutdown error", logfields.Error(err))
			}
		}
		return nil
	})

	err = g.Wait()
	cancel()
	triggers.close()
	if err != nil {
		return ferrors.RuntimeError("preview server failed").WithCause(err).Build()
	}
	return nil
}

// triggerSet starts rebuilds in the background. The rebuilder cancels and
// supersedes builds in flight, so each trigger may start its own goroutine.
type triggerSet struct {
	ctx      context.Context
	rebuild  Rebuilder
	recorder metrics.Recorder

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newTriggerSet(ctx context.Context, r Rebuilder, rec metrics.Recorder) *triggerSet {
	return &triggerSet{ctx: ctx, rebuild: r, recorder: rec}
}

func (t *triggerSet) fire(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runNow(source)
	}()
}

func (t *triggerSet) runNow(source string) {
	t.recorder.IncRebuildTrigger(source)
	slog.Info("Rebuilding site", slog.String("source", source))
	report, err := t.rebuild.Rebuild(t.ctx)
	switch {
	case errors.Is(err, build.ErrSuperseded):
		slog.Debug("Rebuild superseded", slog.String("source", source))
	case ferrors.HasCategory(err, ferrors.CategoryCanceled):
		slog.Info("Rebuild canceled", slog.String("source", source))
	case err != nil:
		slog.Warn("Rebuild failed; serving previous output", logfields.Error(err))
	case report != nil:
		slog.Info("Rebuild complete", logfields.BuildID(report.BuildID), logfields.Outcome(string(report.Outcome)), slog.String("summary", report.Summary()))
	}
}

// close stops accepting triggers and waits for started rebuilds to return.
func (t *triggerSet) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
}
