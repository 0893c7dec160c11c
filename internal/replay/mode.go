package replay

import (
	"context"
)

// modeState carries the ambient replay-mode flag (spec §4.6): whether
// a replay scope is currently active, and which run id it belongs to.
// Nested scopes stack, so the innermost run id is current — this
// falls out naturally from context.Context's parent-chaining: each
// WithMode call derives a child context carrying a new modeState, and
// the previous state is simply the parent's value, restored for free
// the instant the child context goes out of scope.
//
// Using context.Context rather than a package-level mutable flag (or
// goroutine-local storage, which Go does not provide) gives two
// properties the spec requires for free: acquisition/release tied to
// the dynamic extent regardless of how the scope exits (normal,
// panic, early return — a context value is never "released", it is
// simply not observed once the call returns to working with the
// parent context), and per-goroutine isolation without explicit
// bookkeeping (each goroutine that wants replay mode must be handed
// the replay-scoped context explicitly, so there is no way for one
// goroutine's scope to leak into another's).
type modeState struct {
	active bool
	runID  string
}

type modeKey struct{}

// WithMode returns a child context with the replay-mode flag set and
// runID as the current run id. Nested calls stack: the innermost
// runID is current, and exiting the dynamic extent of a WithMode call
// (by simply no longer using the returned context) reverts to the
// parent's state, including whatever state an outer WithMode call
// established.
func WithMode(parent context.Context, runID string) context.Context {
	return context.WithValue(parent, modeKey{}, modeState{active: true, runID: runID})
}

// IsActive reports whether ctx is within the dynamic extent of a
// WithMode scope.
func IsActive(ctx context.Context) bool {
	state, _ := ctx.Value(modeKey{}).(modeState)
	return state.active
}

// RunID returns the current replay run id, or "" if no scope is
// active.
func RunID(ctx context.Context) string {
	state, _ := ctx.Value(modeKey{}).(modeState)
	return state.runID
}

// GuardLiveCall is called by tool and model adapters before making a
// live external call. If ctx is within a replay-mode scope, it fails
// with DeterminismViolationError (subtype live_call_during_replay);
// otherwise it returns nil (spec §4.6, property P14).
func GuardLiveCall(ctx context.Context, opName string) error {
	if !IsActive(ctx) {
		return nil
	}
	runID := RunID(ctx)
	if runID == "" {
		runID = "unknown"
	}
	return &DeterminismViolationError{
		Subtype: LiveCallDuringReplay,
		RunID:   runID,
		OpName:  opName,
		Message: "recorded artifacts must be used instead of a live call to " + opName + " while replaying " + runID,
	}
}
