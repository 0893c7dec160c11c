package divergence

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauravvenkat/forkline/internal/jsondiff"
	"github.com/sauravvenkat/forkline/internal/trace"
)

func buildStep(idx int, name string, input, output map[string]any) trace.Step {
	s := trace.NewStep("run", idx, name, "t")
	if input != nil {
		s = s.WithEvent(trace.NewEvent("run", idx, trace.EventInput, "t", input))
	}
	if output != nil {
		s = s.WithEvent(trace.NewEvent("run", idx, trace.EventOutput, "t", output))
	}
	return s
}

func TestS1IdenticalRuns(t *testing.T) {
	mk := func(runID string) trace.Run {
		r := trace.NewRun(runID, "t0")
		r = r.WithStep(buildStep(0, "init", map[string]any{"x": float64(1)}, map[string]any{"y": float64(2)}))
		r = r.WithStep(buildStep(1, "process", map[string]any{"x": float64(1)}, map[string]any{"y": float64(2)}))
		r = r.WithStep(buildStep(2, "finalize", map[string]any{"x": float64(1)}, map[string]any{"y": float64(2)}))
		return r
	}
	runA := mk("run-a")
	runB := mk("run-b")

	result, err := FindFirstDivergence(runA, runB, Options{})
	require.NoError(t, err)

	assert.Equal(t, ExactMatch, result.Status)
	assert.Nil(t, result.IdxA)
	assert.Nil(t, result.IdxB)
	assert.Equal(t, 2, result.LastEqualIdx)
	assert.Equal(t, "Runs are identical (3 steps compared)", result.Explanation)
}

func TestS2OutputDivergence(t *testing.T) {
	runA := trace.NewRun("run-a", "t0")
	runA = runA.WithStep(buildStep(0, "init", map[string]any{"x": float64(1)}, map[string]any{"y": float64(2)}))
	runA = runA.WithStep(buildStep(1, "generate", map[string]any{"prompt": "hi"}, map[string]any{"text": "hello"}))

	runB := trace.NewRun("run-b", "t0")
	runB = runB.WithStep(buildStep(0, "init", map[string]any{"x": float64(1)}, map[string]any{"y": float64(2)}))
	runB = runB.WithStep(buildStep(1, "generate", map[string]any{"prompt": "hi"}, map[string]any{"text": "hey"}))

	result, err := FindFirstDivergence(runA, runB, Options{})
	require.NoError(t, err)

	assert.Equal(t, OutputDivergence, result.Status)
	require.NotNil(t, result.IdxA)
	require.NotNil(t, result.IdxB)
	assert.Equal(t, 1, *result.IdxA)
	assert.Equal(t, 1, *result.IdxB)
	assert.Equal(t, 0, result.LastEqualIdx)
	require.Len(t, result.OutputDiff, 1)
	assert.Equal(t, "$.text", result.OutputDiff[0].Path)

	want := []jsondiff.Op{{Op: jsondiff.OpReplace, Path: "$.text", Old: "hello", New: "hey"}}
	if diff := cmp.Diff(want, result.OutputDiff); diff != "" {
		t.Errorf("output diff mismatch (-want +got):\n%s", diff)
	}

	// Options{} must default ContextSize to 2, matching spec.md §4.4's
	// symmetric context window, even though Go's zero value for an int
	// field is indistinguishable from an explicit 0.
	// The window spans steps 1-2..1+2 clipped to the run, so it holds
	// steps 0 and 1.
	require.Len(t, result.ContextA, 2)
	assert.Equal(t, 0, result.ContextA[0].Idx)
	assert.Equal(t, 1, result.ContextA[1].Idx)
	require.Len(t, result.ContextB, 2)
	assert.Equal(t, 0, result.ContextB[0].Idx)
	assert.Equal(t, 1, result.ContextB[1].Idx)
}

func TestOptionsNormalizedDefaultsContextSize(t *testing.T) {
	assert.Equal(t, 2, Options{}.normalized().ContextSize)
	assert.Equal(t, 2, Options{ContextSize: 0}.normalized().ContextSize)
	assert.Equal(t, 5, Options{ContextSize: 5}.normalized().ContextSize)
}

func TestS3InsertedStepInRunB(t *testing.T) {
	runA := trace.NewRun("run-a", "t0")
	for i, name := range []string{"init", "step_one", "step_two", "finalize"} {
		runA = runA.WithStep(buildStep(i, name, map[string]any{"i": float64(i)}, nil))
	}

	runB := trace.NewRun("run-b", "t0")
	for i, name := range []string{"init", "step_one", "extra_step", "step_two", "finalize"} {
		input := map[string]any{"i": float64(i)}
		if name == "step_two" {
			input = map[string]any{"i": float64(2)}
		}
		if name == "finalize" {
			input = map[string]any{"i": float64(3)}
		}
		runB = runB.WithStep(buildStep(i, name, input, nil))
	}

	result, err := FindFirstDivergence(runA, runB, Options{})
	require.NoError(t, err)

	assert.Equal(t, ExtraSteps, result.Status)
	require.NotNil(t, result.IdxB)
	assert.Equal(t, 2, *result.IdxB)
	assert.Equal(t, 1, result.LastEqualIdx)
	assert.Equal(t, "Step 2 in run_b not present in run_a", result.Explanation)
}

func TestS4DeletedMiddleStepInRunB(t *testing.T) {
	runA := trace.NewRun("run-a", "t0")
	runA = runA.WithStep(buildStep(0, "init", map[string]any{"i": float64(0)}, nil))
	runA = runA.WithStep(buildStep(1, "middle", map[string]any{"i": float64(1)}, nil))
	runA = runA.WithStep(buildStep(2, "end", map[string]any{"i": float64(2)}, nil))

	runB := trace.NewRun("run-b", "t0")
	runB = runB.WithStep(buildStep(0, "init", map[string]any{"i": float64(0)}, nil))
	runB = runB.WithStep(buildStep(1, "end", map[string]any{"i": float64(2)}, nil))

	result, err := FindFirstDivergence(runA, runB, Options{})
	require.NoError(t, err)

	assert.Equal(t, MissingSteps, result.Status)
	require.NotNil(t, result.IdxA)
	assert.Equal(t, 1, *result.IdxA)
	assert.Equal(t, 0, result.LastEqualIdx)
}

func TestOpDivergence(t *testing.T) {
	runA := trace.NewRun("run-a", "t0")
	runA = runA.WithStep(buildStep(0, "fetch", map[string]any{"i": float64(0)}, nil))

	runB := trace.NewRun("run-b", "t0")
	runB = runB.WithStep(buildStep(0, "parse", map[string]any{"i": float64(0)}, nil))

	result, err := FindFirstDivergence(runA, runB, Options{})
	require.NoError(t, err)

	assert.Equal(t, OpDivergence, result.Status)
	assert.Equal(t, "Step 0: operation mismatch ('fetch' vs 'parse')", result.Explanation)
}

func TestErrorDivergence(t *testing.T) {
	runA := trace.NewRun("run-a", "t0")
	stepA := trace.NewStep("run-a", 0, "call", "t0").
		WithEvent(trace.NewEvent("run-a", 0, trace.EventInput, "t", map[string]any{"i": float64(0)}))
	runA = runA.WithStep(stepA)

	runB := trace.NewRun("run-b", "t0")
	stepB := trace.NewStep("run-b", 0, "call", "t0").
		WithEvent(trace.NewEvent("run-b", 0, trace.EventInput, "t", map[string]any{"i": float64(0)})).
		WithEvent(trace.NewEvent("run-b", 0, trace.EventError, "t", map[string]any{"msg": "boom"}))
	runB = runB.WithStep(stepB)

	result, err := FindFirstDivergence(runA, runB, Options{})
	require.NoError(t, err)
	assert.Equal(t, ErrorDivergence, result.Status)
}

func TestFindFirstDivergenceDeterministic(t *testing.T) {
	runA := trace.NewRun("run-a", "t0")
	runA = runA.WithStep(buildStep(0, "init", map[string]any{"x": float64(1)}, map[string]any{"y": float64(2)}))
	runB := trace.NewRun("run-b", "t0")
	runB = runB.WithStep(buildStep(0, "init", map[string]any{"x": float64(1)}, map[string]any{"y": float64(3)}))

	first, err := FindFirstDivergence(runA, runB, Options{})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		next, err := FindFirstDivergence(runA, runB, Options{})
		require.NoError(t, err)
		assert.Equal(t, first.Status, next.Status)
		assert.Equal(t, first.Explanation, next.Explanation)
	}
}
