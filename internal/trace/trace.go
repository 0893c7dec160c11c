// Package trace defines Forkline's Event/Step/Run record model (spec
// §3, C4): immutable-after-construction records, built by the store
// and passed by value into the core.
//
// Grounded on original_source/forkline/core/types.py's frozen
// dataclasses. Go has no frozen-dataclass primitive, so immutability
// is enforced by convention: constructors copy their slice/map
// arguments and no exported method mutates a record in place, matching
// the style of github.com/roach88/nysm's internal/harness/types.go
// (plain structs treated as value types, never mutated after
// creation).
package trace

import "fmt"

// DefaultForklineVersion and DefaultSchemaVersion are substituted when a
// loaded Run lacks the corresponding provenance tag (spec §3, §4 "optional
// fields ... defined defaults when absent").
const (
	DefaultForklineVersion = "0"
	DefaultSchemaVersion   = "0"
)

// Recognized event type tags (spec §3). Other tags are permitted and
// treated as opaque output-like events during comparison.
const (
	EventInput       = "input"
	EventOutput      = "output"
	EventToolCall    = "tool_call"
	EventLLMCall     = "llm_call"
	EventArtifactRef = "artifact_ref"
	EventError       = "error"
)

// Event is one observation within a step.
type Event struct {
	// EventID is the store-assigned monotonic id, nil until persisted.
	EventID   *int64
	RunID     string
	StepIdx   int
	Type      string
	CreatedAt string
	Payload   map[string]any
}

// NewEvent constructs an Event, copying payload so the caller's map is
// never aliased (matches the record-is-a-value-type convention).
func NewEvent(runID string, stepIdx int, eventType, createdAt string, payload map[string]any) Event {
	return Event{
		RunID:     runID,
		StepIdx:   stepIdx,
		Type:      eventType,
		CreatedAt: createdAt,
		Payload:   copyPayload(payload),
	}
}

// WithEventID returns a copy of e with EventID set, used by the store
// once a row has been assigned an id.
func (e Event) WithEventID(id int64) Event {
	e.EventID = &id
	return e
}

// Step is an ordered group of events sharing a name.
type Step struct {
	// StepID is the store-assigned monotonic id, nil until persisted.
	StepID    *int64
	RunID     string
	Idx       int
	Name      string
	StartedAt string
	EndedAt   *string
	Events    []Event
}

// NewStep constructs a Step with no events yet appended.
func NewStep(runID string, idx int, name, startedAt string) Step {
	return Step{RunID: runID, Idx: idx, Name: name, StartedAt: startedAt}
}

// WithStepID returns a copy of s with StepID set.
func (s Step) WithStepID(id int64) Step {
	s.StepID = &id
	return s
}

// WithEndedAt returns a copy of s with EndedAt set.
func (s Step) WithEndedAt(endedAt string) Step {
	s.EndedAt = &endedAt
	return s
}

// WithEvent returns a copy of s with event appended to its event
// sequence (insertion order is semantically significant, invariant I6).
func (s Step) WithEvent(e Event) Step {
	events := make([]Event, len(s.Events), len(s.Events)+1)
	copy(events, s.Events)
	s.Events = append(events, e)
	return s
}

// Run is an ordered sequence of steps.
type Run struct {
	RunID           string
	CreatedAt       string
	Steps           []Step
	ForklineVersion string
	SchemaVersion   string
}

// NewRun constructs an empty Run, filling version fields with their
// library-defined defaults (spec §3).
func NewRun(runID, createdAt string) Run {
	return Run{
		RunID:           runID,
		CreatedAt:       createdAt,
		ForklineVersion: DefaultForklineVersion,
		SchemaVersion:   DefaultSchemaVersion,
	}
}

// WithStep returns a copy of r with step appended.
func (r Run) WithStep(s Step) Run {
	steps := make([]Step, len(r.Steps), len(r.Steps)+1)
	copy(steps, r.Steps)
	r.Steps = append(steps, s)
	return r
}

// Validate checks the structural invariants the store is required to
// uphold on load: steps ordered by Idx with no duplicates (spec §3
// "ordered by idx, no gaps required but duplicates forbidden").
func (r Run) Validate() error {
	seen := make(map[int]struct{}, len(r.Steps))
	lastIdx := -1
	for _, step := range r.Steps {
		if _, dup := seen[step.Idx]; dup {
			return fmt.Errorf("trace: run %s: duplicate step idx %d", r.RunID, step.Idx)
		}
		seen[step.Idx] = struct{}{}
		if step.Idx < lastIdx {
			return fmt.Errorf("trace: run %s: step idx %d out of order after %d", r.RunID, step.Idx, lastIdx)
		}
		lastIdx = step.Idx
	}
	return nil
}

// StepByIdx returns the step with the given idx, in Idx order per I6.
func (r Run) StepByIdx(idx int) (Step, bool) {
	for _, s := range r.Steps {
		if s.Idx == idx {
			return s, true
		}
	}
	return Step{}, false
}

// StepByName returns the first step (in Idx order) with the given
// name.
func (r Run) StepByName(name string) (Step, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

func copyPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
