package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/sauravvenkat/forkline/internal/compare"
	"github.com/sauravvenkat/forkline/internal/trace"
)

// Status is the overall outcome of a replay run (spec §4.6's state
// machine): initial running -> one of the terminal values below.
type Status string

const (
	Running          Status = "running"
	Match            Status = "match"
	Diverged         Status = "diverged"
	Incomplete       Status = "incomplete"
	Error            Status = "error"
	OriginalNotFound Status = "original_not_found"
	ReplayNotFound   Status = "replay_not_found"
)

// ErrReplayExhausted is returned by an Executor to signal that the
// live system it drives ran out of steps before the recording did.
// runWithExecutor reports this as Incomplete rather than Error,
// matching spec §4.6's distinction between a comparison that
// exhausted the replay before the recording (incomplete) and one
// that failed outright (error).
var ErrReplayExhausted = errors.New("replay: executor exhausted before recording finished")

// StepResult records the outcome of replaying a single step.
type StepResult struct {
	StepIdx int
	Matched bool
	Point   *compare.DivergencePoint
}

// Result is the outcome of running a replay to completion.
type Result struct {
	Status      Status
	RunID       string
	Steps       []StepResult
	Divergence  *compare.DivergencePoint
	Message     string
}

// Policy configures the no-executor artifact-presence check.
type Policy struct {
	// FailOnMissingArtifact, when set, makes a step with no events, a
	// missing tool result or an empty model payload end the replay with
	// Status Error and the MissingArtifactError text as Message; Run
	// returns no error value. When unset, such gaps are tolerated and
	// the run is reported as a match.
	FailOnMissingArtifact bool
}

// Executor re-executes a single recorded step and returns the step it
// actually produced. It is called once per step, in step order, under
// the replay-mode scope.
type Executor func(ctx context.Context, recorded trace.Step, rc *Context) (trace.Step, error)

// Run drives a replay of recordedRun. With executor == nil, it
// performs a presence-only check of each step's artifacts, gated by
// policy. With executor != nil, each recorded step is re-executed and
// compared against the recording via compare.CompareStep, halting at
// the first divergence (invariant I4).
func Run(ctx context.Context, recordedRun trace.Run, policy Policy, executor Executor) Result {
	rc := NewContext(recordedRun)
	replayCtx := WithMode(ctx, recordedRun.RunID)

	if executor == nil {
		return runPresenceCheck(recordedRun, policy)
	}
	return runWithExecutor(replayCtx, recordedRun, rc, executor)
}

func runPresenceCheck(run trace.Run, policy Policy) Result {
	steps := make([]StepResult, 0, len(run.Steps))
	for _, step := range run.Steps {
		if len(step.Events) == 0 {
			if policy.FailOnMissingArtifact {
				return Result{
					Status:  Error,
					RunID:   run.RunID,
					Message: (&MissingArtifactError{RunID: run.RunID, StepIdx: step.Idx, ArtifactKind: "step_events"}).Error(),
				}
			}
			steps = append(steps, StepResult{StepIdx: step.Idx, Matched: true})
			continue
		}

		for _, e := range step.Events {
			if missing := artifactMissing(e); missing != "" {
				if policy.FailOnMissingArtifact {
					return Result{
						Status:  Error,
						RunID:   run.RunID,
						Message: (&MissingArtifactError{RunID: run.RunID, StepIdx: step.Idx, ArtifactKind: missing}).Error(),
					}
				}
			}
		}
		steps = append(steps, StepResult{StepIdx: step.Idx, Matched: true})
	}

	return Result{Status: Match, RunID: run.RunID, Steps: steps}
}

// artifactMissing reports the artifact kind that's absent from e under
// policy, or "" if e is fully populated: a tool_call must carry a
// "result" field, and a llm_call must carry a non-empty payload.
func artifactMissing(e trace.Event) string {
	switch e.Type {
	case trace.EventToolCall:
		if _, ok := e.Payload["result"]; !ok {
			return "tool_result"
		}
	case trace.EventLLMCall:
		if len(e.Payload) == 0 {
			return "model_payload"
		}
	}
	return ""
}

func runWithExecutor(ctx context.Context, recordedRun trace.Run, rc *Context, executor Executor) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Status:  Error,
				RunID:   recordedRun.RunID,
				Message: fmt.Sprintf("executor panicked: %v", r),
			}
		}
	}()

	steps := make([]StepResult, 0, len(recordedRun.Steps))
	for _, recorded := range recordedRun.Steps {
		actual, err := executor(ctx, recorded, rc)
		if err != nil {
			if errors.Is(err, ErrReplayExhausted) {
				return Result{
					Status:  Incomplete,
					RunID:   recordedRun.RunID,
					Steps:   steps,
					Message: fmt.Sprintf("incomplete: run=%s step=%d: %s", recordedRun.RunID, recorded.Idx, err.Error()),
				}
			}
			return Result{
				Status:  Error,
				RunID:   recordedRun.RunID,
				Steps:   steps,
				Message: err.Error(),
			}
		}

		matched, point := compare.CompareStep(recorded, actual)
		steps = append(steps, StepResult{StepIdx: recorded.Idx, Matched: matched, Point: point})
		if !matched {
			// A name mismatch means the executor ran a different
			// operation entirely, not a value-level drift the caller
			// can tolerate: spec §7's determinism_violation, not a
			// plain divergence.
			if point.Reason == compare.ReasonNameMismatch {
				violation := &DeterminismViolationError{
					Subtype: ExecutorOutputMismatch,
					RunID:   recordedRun.RunID,
					StepIdx: recorded.Idx,
					Message: fmt.Sprintf("step %d: executor ran %q, recording expected %q", recorded.Idx, actual.Name, recorded.Name),
				}
				return Result{
					Status:     Error,
					RunID:      recordedRun.RunID,
					Steps:      steps,
					Divergence: point,
					Message:    violation.Error(),
				}
			}
			return Result{
				Status:     Diverged,
				RunID:      recordedRun.RunID,
				Steps:      steps,
				Divergence: point,
			}
		}
	}

	return Result{Status: Match, RunID: recordedRun.RunID, Steps: steps}
}
