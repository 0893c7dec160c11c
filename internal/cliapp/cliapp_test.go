package cliapp

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauravvenkat/forkline/internal/eventstore"
	"github.com/sauravvenkat/forkline/internal/trace"
)

func seedRun(t *testing.T, dbPath, runID string, outputValue float64) {
	t.Helper()
	store, err := eventstore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.StartRun(runID)
	require.NoError(t, err)

	_, err = store.StartStep(runID, 0, "init")
	require.NoError(t, err)
	_, err = store.AppendEvent(runID, 0, trace.EventInput, map[string]any{"x": float64(1)})
	require.NoError(t, err)
	_, err = store.AppendEvent(runID, 0, trace.EventOutput, map[string]any{"y": outputValue})
	require.NoError(t, err)
	require.NoError(t, store.EndStep(runID, 0))
}

func TestDiffCommandExactMatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)
	seedRun(t, dbPath, "run-b", 2)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "diff", "run-a", "run-b"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "exact_match")
}

func TestDiffCommandDivergence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)
	seedRun(t, dbPath, "run-b", 3)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "--format", "json", "diff", "run-a", "run-b"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "output_divergence")
}

func TestDiffCommandMissingRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "diff", "run-a", "missing"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayCommandMatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "replay", "run-a"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "match")
}

func TestInvalidFormatRejected(t *testing.T) {
	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--format", "xml", "diff", "a", "b"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayCommandOriginalNotFound(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "replay", "missing"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "original_not_found")
}

func TestReplayCommandAgainstReplayNotFound(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "replay", "--against", "missing", "run-a"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "replay_not_found")
}

func TestReplayCommandAgainstMatchingRunMatches(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)
	seedRun(t, dbPath, "run-b", 2)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "replay", "--against", "run-b", "run-a"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "match")
}

func TestReplayCommandAgainstDivergingRunDiverges(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)
	seedRun(t, dbPath, "run-b", 3)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "replay", "--against", "run-b", "run-a"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "diverged")
}

func TestInvalidCanonRejected(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forkline.db")
	seedRun(t, dbPath, "run-a", 2)
	seedRun(t, dbPath, "run-b", 2)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--db", dbPath, "diff", "--canon", "loose", "run-a", "run-b"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
