package replay

import (
	"github.com/sauravvenkat/forkline/internal/trace"
)

// Context is a cursor-based oracle over a recorded run (spec §4.6). It
// is read-only on the underlying run (invariant I5): no method ever
// mutates the Run it was built from.
type Context struct {
	run     trace.Run
	cursors map[int]int // stepIdx -> next event position
}

// NewContext builds a replay oracle over run. The run is never
// mutated by any Context method.
func NewContext(run trace.Run) *Context {
	return &Context{run: run, cursors: make(map[int]int)}
}

// Run returns the underlying recorded run.
func (c *Context) Run() trace.Run {
	return c.run
}

// GetStep returns the step at idx.
func (c *Context) GetStep(idx int) (trace.Step, bool) {
	return c.run.StepByIdx(idx)
}

// GetStepByName returns the first step (in idx order) named name.
func (c *Context) GetStepByName(name string) (trace.Step, bool) {
	return c.run.StepByName(name)
}

// GetEvent returns the event at eventIdx within step stepIdx.
func (c *Context) GetEvent(stepIdx, eventIdx int) (trace.Event, bool) {
	step, ok := c.GetStep(stepIdx)
	if !ok || eventIdx < 0 || eventIdx >= len(step.Events) {
		return trace.Event{}, false
	}
	return step.Events[eventIdx], true
}

// GetEventsByType returns every event of the given type within step
// stepIdx, in insertion order.
func (c *Context) GetEventsByType(stepIdx int, eventType string) []trace.Event {
	step, ok := c.GetStep(stepIdx)
	if !ok {
		return nil
	}
	var out []trace.Event
	for _, e := range step.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// NextEvent advances the per-step cursor and returns the event it was
// pointing at before advancing. If expectedType is non-empty and
// doesn't match that event's type, the oracle fails with
// ReplayOrderError and the cursor is not advanced.
func (c *Context) NextEvent(stepIdx int, expectedType string) (trace.Event, error) {
	step, ok := c.GetStep(stepIdx)
	if !ok {
		return trace.Event{}, &MissingArtifactError{RunID: c.run.RunID, StepIdx: stepIdx, ArtifactKind: "step"}
	}

	pos := c.cursors[stepIdx]
	if pos >= len(step.Events) {
		return trace.Event{}, &MissingArtifactError{RunID: c.run.RunID, StepIdx: stepIdx, ArtifactKind: "event"}
	}

	event := step.Events[pos]
	if expectedType != "" && event.Type != expectedType {
		return trace.Event{}, &ReplayOrderError{
			RunID:        c.run.RunID,
			StepIdx:      stepIdx,
			CursorIdx:    pos,
			ExpectedType: expectedType,
			ActualType:   event.Type,
		}
	}

	c.cursors[stepIdx] = pos + 1
	return event, nil
}

// PeekEvent returns the event the cursor for stepIdx currently points
// at, without advancing.
func (c *Context) PeekEvent(stepIdx int) (trace.Event, bool) {
	step, ok := c.GetStep(stepIdx)
	if !ok {
		return trace.Event{}, false
	}
	pos := c.cursors[stepIdx]
	if pos >= len(step.Events) {
		return trace.Event{}, false
	}
	return step.Events[pos], true
}

// ResetCursor resets the cursor for stepIdx back to zero. If stepIdx
// is nil, every cursor is reset.
func (c *Context) ResetCursor(stepIdx *int) {
	if stepIdx == nil {
		c.cursors = make(map[int]int)
		return
	}
	delete(c.cursors, *stepIdx)
}
