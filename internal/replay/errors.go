// Package replay implements Forkline's replay context and mode
// machinery (spec §4.6, C7): a cursor-based artifact oracle backed by
// a recorded run, an ambient "no live calls" flag scoped to the
// dynamic extent of a replay, and the replay engine orchestration that
// drives an executor step-by-step against a recording.
//
// Error shaping follows github.com/roach88/nysm's
// internal/engine/errors.go: a typed struct per error kind with a
// Code-like discriminator and errors.As-friendly predicate helpers,
// rather than sentinel error values.
package replay

import (
	"errors"
	"fmt"
)

// MissingArtifactError reports a required piece of a recorded run
// that is absent (spec §7).
type MissingArtifactError struct {
	RunID        string
	StepIdx      int
	EventIdx     *int
	ArtifactKind string
}

func (e *MissingArtifactError) Error() string {
	if e.EventIdx != nil {
		return fmt.Sprintf("run=%s step=%d event=%d missing_artifact: kind=%s", e.RunID, e.StepIdx, *e.EventIdx, e.ArtifactKind)
	}
	return fmt.Sprintf("run=%s step=%d missing_artifact: kind=%s", e.RunID, e.StepIdx, e.ArtifactKind)
}

// IsMissingArtifact reports whether err is (or wraps) a
// MissingArtifactError.
func IsMissingArtifact(err error) bool {
	var target *MissingArtifactError
	return errors.As(err, &target)
}

// DeterminismViolationSubtype distinguishes the ways a
// DeterminismViolationError can arise.
type DeterminismViolationSubtype string

const (
	LiveCallDuringReplay   DeterminismViolationSubtype = "live_call_during_replay"
	ExecutorOutputMismatch DeterminismViolationSubtype = "executor_output_mismatch"
)

// DeterminismViolationError reports a live external call inside a
// replay-mode scope, or an executor producing output the replay
// cannot tolerate (spec §7).
type DeterminismViolationError struct {
	Subtype  DeterminismViolationSubtype
	RunID    string
	StepIdx  int
	OpName   string
	Expected any
	Actual   any
	Message  string
}

func (e *DeterminismViolationError) Error() string {
	runID := e.RunID
	if runID == "" {
		runID = "unknown"
	}
	if e.Message != "" {
		return fmt.Sprintf("run=%s determinism_violation[%s]: %s", runID, e.Subtype, e.Message)
	}
	return fmt.Sprintf("run=%s step=%d determinism_violation[%s]: op=%s", runID, e.StepIdx, e.Subtype, e.OpName)
}

// IsDeterminismViolation reports whether err is (or wraps) a
// DeterminismViolationError.
func IsDeterminismViolation(err error) bool {
	var target *DeterminismViolationError
	return errors.As(err, &target)
}

// ReplayOrderError reports that the oracle was asked for the next
// event of a type that did not match the event at the current cursor.
type ReplayOrderError struct {
	RunID        string
	StepIdx      int
	CursorIdx    int
	ExpectedType string
	ActualType   string
}

func (e *ReplayOrderError) Error() string {
	return fmt.Sprintf("run=%s step=%d replay_order: cursor=%d expected=%s actual=%s",
		e.RunID, e.StepIdx, e.CursorIdx, e.ExpectedType, e.ActualType)
}

// IsReplayOrder reports whether err is (or wraps) a ReplayOrderError.
func IsReplayOrder(err error) bool {
	var target *ReplayOrderError
	return errors.As(err, &target)
}
