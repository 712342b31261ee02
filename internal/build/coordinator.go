package build

import (
	"context"
	"log/slog"
	"sync"
)

// Runner executes a single build.
type Runner interface {
	Build(ctx context.Context) (*Report, error)
}

// Coordinator serializes builds into one output directory. A new Rebuild
// request cancels the build in flight and runs once the lock is free, so the
// latest request always wins and at most one build writes or swaps at a time.
type Coordinator struct {
	runner Runner

	buildMu sync.Mutex // held for the duration of a build

	mu     sync.Mutex // guards the fields below
	seq    uint64
	cancel context.CancelFunc
	last   *Report
}

// NewCoordinator wraps runner.
func NewCoordinator(runner Runner) *Coordinator {
	return &Coordinator{runner: runner}
}

// Rebuild supersedes any in-flight build and runs a fresh one. It returns
// ErrSuperseded when an even newer request arrived before this one started.
func (c *Coordinator) Rebuild(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	bctx, cancel := context.WithCancel(ctx)
	c.seq++
	mine := c.seq
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	c.mu.Lock()
	superseded := c.seq != mine
	c.mu.Unlock()
	if superseded {
		slog.Debug("Rebuild superseded before start")
		return nil, ErrSuperseded
	}

	report, err := c.runner.Build(bctx)

	c.mu.Lock()
	if c.seq == mine {
		c.cancel = nil
	}
	if report != nil {
		c.last = report
	}
	c.mu.Unlock()
	return report, err
}

// Last returns the report of the most recently completed build, or nil.
func (c *Coordinator) Last() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Stop cancels the build in flight, if any.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
