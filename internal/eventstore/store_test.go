package eventstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauravvenkat/forkline/internal/trace"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forkline.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStartRunThenLoad(t *testing.T) {
	s := openTestStore(t)

	run, err := s.StartRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.RunID)

	loaded, ok, err := s.LoadRun("run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Empty(t, loaded.Steps)
}

func TestLoadMissingRun(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LoadRun("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStepAndEventRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, err := s.StartRun("run-1")
	require.NoError(t, err)

	step, err := s.StartStep("run-1", 0, "fetch")
	require.NoError(t, err)
	require.NotNil(t, step.StepID)

	_, err = s.AppendEvent("run-1", 0, trace.EventInput, map[string]any{"url": "https://x"})
	require.NoError(t, err)
	_, err = s.AppendEvent("run-1", 0, trace.EventOutput, map[string]any{"status": float64(200)})
	require.NoError(t, err)

	require.NoError(t, s.EndStep("run-1", 0))

	loaded, ok, err := s.LoadRun("run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Steps, 1)

	loadedStep := loaded.Steps[0]
	assert.Equal(t, "fetch", loadedStep.Name)
	require.NotNil(t, loadedStep.EndedAt)
	require.Len(t, loadedStep.Events, 2)
	assert.Equal(t, trace.EventInput, loadedStep.Events[0].Type)
	assert.Equal(t, trace.EventOutput, loadedStep.Events[1].Type)
	assert.Equal(t, "https://x", loadedStep.Events[0].Payload["url"])
}

func TestMultipleStepsOrderedByIdx(t *testing.T) {
	s := openTestStore(t)
	_, err := s.StartRun("run-1")
	require.NoError(t, err)

	_, err = s.StartStep("run-1", 1, "second")
	require.NoError(t, err)
	_, err = s.StartStep("run-1", 0, "first")
	require.NoError(t, err)

	loaded, ok, err := s.LoadRun("run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "first", loaded.Steps[0].Name)
	assert.Equal(t, "second", loaded.Steps[1].Name)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forkline.db")
	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.StartRun("run-1")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	loaded, ok, err := s2.LoadRun("run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", loaded.RunID)
}
