package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauravvenkat/forkline/internal/testutil"
)

func TestNewEventCopiesPayload(t *testing.T) {
	payload := map[string]any{"a": 1}
	e := NewEvent("run-1", 0, EventInput, "t0", payload)

	payload["a"] = 2
	assert.Equal(t, 1, e.Payload["a"])
}

func TestStepWithEventAppendsImmutably(t *testing.T) {
	s := NewStep("run-1", 0, "fetch", "t0")
	s1 := s.WithEvent(NewEvent("run-1", 0, EventInput, "t0", nil))

	assert.Empty(t, s.Events)
	assert.Len(t, s1.Events, 1)

	s2 := s1.WithEvent(NewEvent("run-1", 0, EventOutput, "t1", nil))
	assert.Len(t, s1.Events, 1)
	assert.Len(t, s2.Events, 2)
}

func TestRunWithStepAppendsImmutably(t *testing.T) {
	r := NewRun("run-1", "t0")
	r1 := r.WithStep(NewStep("run-1", 0, "fetch", "t0"))

	assert.Empty(t, r.Steps)
	assert.Len(t, r1.Steps, 1)
	assert.Equal(t, DefaultForklineVersion, r1.ForklineVersion)
	assert.Equal(t, DefaultSchemaVersion, r1.SchemaVersion)
}

func TestRunValidateRejectsDuplicateIdx(t *testing.T) {
	r := NewRun("run-1", "t0")
	r = r.WithStep(NewStep("run-1", 0, "a", "t0"))
	r = r.WithStep(NewStep("run-1", 0, "b", "t1"))

	require.Error(t, r.Validate())
}

func TestRunValidateRejectsOutOfOrder(t *testing.T) {
	r := NewRun("run-1", "t0")
	r = r.WithStep(NewStep("run-1", 1, "a", "t0"))
	r = r.WithStep(NewStep("run-1", 0, "b", "t1"))

	require.Error(t, r.Validate())
}

func TestRunValidateAllowsGaps(t *testing.T) {
	r := NewRun("run-1", "t0")
	r = r.WithStep(NewStep("run-1", 0, "a", "t0"))
	r = r.WithStep(NewStep("run-1", 5, "b", "t1"))

	require.NoError(t, r.Validate())
}

func TestStepByIdxAndName(t *testing.T) {
	r := NewRun("run-1", "t0")
	r = r.WithStep(NewStep("run-1", 0, "fetch", "t0"))
	r = r.WithStep(NewStep("run-1", 1, "parse", "t1"))

	s, ok := r.StepByIdx(1)
	require.True(t, ok)
	assert.Equal(t, "parse", s.Name)

	s, ok = r.StepByName("fetch")
	require.True(t, ok)
	assert.Equal(t, 0, s.Idx)

	_, ok = r.StepByIdx(9)
	assert.False(t, ok)
}

func TestRunStepsCarryStrictlyIncreasingTimestamps(t *testing.T) {
	clock := testutil.NewDeterministicClock()

	r := NewRun("run-1", clock.Timestamp())
	r = r.WithStep(NewStep("run-1", 0, "fetch", clock.Timestamp()))
	r = r.WithStep(NewStep("run-1", 1, "parse", clock.Timestamp()))

	require.NoError(t, r.Validate())
	assert.Less(t, r.Steps[0].StartedAt, r.Steps[1].StartedAt)
}

func TestWithEventIDAndEndedAt(t *testing.T) {
	s := NewStep("run-1", 0, "fetch", "t0").WithStepID(7).WithEndedAt("t1")
	require.NotNil(t, s.StepID)
	assert.Equal(t, int64(7), *s.StepID)
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, "t1", *s.EndedAt)

	e := NewEvent("run-1", 0, EventInput, "t0", nil).WithEventID(3)
	require.NotNil(t, e.EventID)
	assert.Equal(t, int64(3), *e.EventID)
}
