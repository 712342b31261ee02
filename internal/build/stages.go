package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/gongjeon/internal/logfields"
	"git.home.luguber.info/inful/gongjeon/internal/metrics"
	"git.home.luguber.info/inful/gongjeon/internal/observability"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StagePrepareOutput StageName = "prepare_output"
	StageDiscover      StageName = "discover"
	StageConvert       StageName = "convert"
	StageWriteIndex    StageName = "write_index"
	StageVerifyLinks   StageName = "verify_links"
	StageFinalize      StageName = "finalize"
)

// Stage is a discrete unit of work in the site build.
type Stage func(ctx context.Context, bs *buildState) error

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

type namedStage struct {
	name StageName
	fn   Stage
}

// runStages executes stages in order, recording timing and stopping on the
// first fatal or canceled stage.
func runStages(ctx context.Context, bs *buildState, stages []namedStage) error {
	rec := bs.recorder
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			se := newCanceledStageError(st.name, err)
			bs.report.recordStage(st.name, se)
			rec.IncStageResult(string(st.name), metrics.ResultCanceled)
			return se
		}

		sctx := observability.WithStage(ctx, string(st.name))
		t0 := time.Now()
		err := st.fn(sctx, bs)
		dur := time.Since(t0)
		bs.report.StageDurations[st.name] = dur
		rec.ObserveStageDuration(string(st.name), dur)
		observability.DebugContext(sctx, "Stage finished",
			logfields.DurationMS(float64(dur.Microseconds())/1000))

		if err == nil {
			bs.report.recordStage(st.name, nil)
			rec.IncStageResult(string(st.name), metrics.ResultSuccess)
			continue
		}

		var se *StageError
		if !errors.As(err, &se) {
			se = newFatalStageError(st.name, err)
		}
		// A stage that observed cancellation reports it as such.
		if se.Kind == StageErrorFatal && errors.Is(se.Err, context.Canceled) {
			se.Kind = StageErrorCanceled
		}
		bs.report.recordStage(st.name, se)

		switch se.Kind {
		case StageErrorWarning:
			rec.IncStageResult(string(st.name), metrics.ResultWarning)
			observability.WarnContext(sctx, "Stage completed with warnings", logfields.Error(se.Err))
			continue
		case StageErrorCanceled:
			rec.IncStageResult(string(st.name), metrics.ResultCanceled)
			return se
		default:
			rec.IncStageResult(string(st.name), metrics.ResultFatal)
			return se
		}
	}
	return nil
}
