// Package recorder is a convenience wrapper over internal/eventstore
// for the recording data flow (spec §2: "caller hands event payloads
// to the store boundary -> C3 redacts -> persisted").
//
// Grounded on original_source/forkline/tracer.py's Tracer/StepScope
// context-manager pair; Go has no context manager, so the scoped-step
// shape becomes an explicit Step handle whose End method the caller
// defers, in the same spirit as database/sql transactions. Run ids are
// generated with github.com/google/uuid rather than stdlib's
// crypto/rand-based hex encoding that tracer.py uses, following
// nysm's IDs-via-google/uuid convention.
package recorder

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sauravvenkat/forkline/internal/eventstore"
	"github.com/sauravvenkat/forkline/internal/redact"
	"github.com/sauravvenkat/forkline/internal/trace"
)

// Recorder records a single run's steps and events into a Store,
// redacting every event payload through policy before it is
// persisted.
type Recorder struct {
	store  *eventstore.Store
	policy redact.Policy
	runID  string

	activeStepIdx int
	nextStepIdx   int
	stepActive    bool
}

// New starts a new run in store, identified by a freshly generated
// run id, and returns a Recorder bound to it.
func New(store *eventstore.Store, policy redact.Policy) (*Recorder, error) {
	runID := uuid.NewString()
	if _, err := store.StartRun(runID); err != nil {
		return nil, fmt.Errorf("recorder: start run: %w", err)
	}
	return &Recorder{store: store, policy: policy, runID: runID}, nil
}

// RunID returns the run id this recorder is writing to.
func (r *Recorder) RunID() string {
	return r.runID
}

// Step is a handle to an in-progress step; callers must call End once
// recording for the step is complete.
type Step struct {
	recorder *Recorder
	idx      int
	ended    bool
}

// StartStep opens a new step named name and makes it the active step
// for Record calls until the returned Step's End method is called.
func (r *Recorder) StartStep(name string) (*Step, error) {
	idx := r.nextStepIdx
	r.nextStepIdx++
	if _, err := r.store.StartStep(r.runID, idx, name); err != nil {
		return nil, fmt.Errorf("recorder: start step %q: %w", name, err)
	}
	r.activeStepIdx = idx
	r.stepActive = true
	return &Step{recorder: r, idx: idx}, nil
}

// Record appends an event of eventType to the step, redacting payload
// through the recorder's policy before it is persisted.
func (s *Step) Record(eventType string, payload map[string]any) (trace.Event, error) {
	if s.ended {
		return trace.Event{}, fmt.Errorf("recorder: step %d already ended", s.idx)
	}
	redacted, err := s.recorder.policy.Redact(eventType, payload)
	if err != nil {
		return trace.Event{}, fmt.Errorf("recorder: redact event: %w", err)
	}
	return s.recorder.store.AppendEvent(s.recorder.runID, s.idx, eventType, redacted)
}

// End closes the step, stamping its ended_at timestamp. End is
// idempotent.
func (s *Step) End() error {
	if s.ended {
		return nil
	}
	s.ended = true
	s.recorder.stepActive = false
	return s.recorder.store.EndStep(s.recorder.runID, s.idx)
}

// Load reconstructs the recorded run so far.
func (r *Recorder) Load() (trace.Run, bool, error) {
	return r.store.LoadRun(r.runID)
}
