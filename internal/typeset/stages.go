package typeset

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage is a discrete unit of work in a typeset run.
type Stage func(ctx context.Context, bs *buildState) error

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// Stage names, used in reports and metrics labels.
const (
	StageRotate   = "rotate_history"
	StagePrepare  = "prepare_dir"
	StageQRCode   = "qrcode"
	StageAssemble = "assemble"
	StageRender   = "render"
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func newCanceledStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// runStage executes a single named stage, recording its duration on the report.
func runStage(ctx context.Context, bs *buildState, name string, fn Stage) error {
	select {
	case <-ctx.Done():
		return newCanceledStageError(name, ctx.Err())
	default:
	}
	t0 := time.Now()
	err := fn(ctx, bs)
	bs.mu.Lock()
	bs.report.StageDurations[name] = time.Since(t0)
	bs.mu.Unlock()
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return newFatalStageError(name, err)
}
