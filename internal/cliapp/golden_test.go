package cliapp

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/sauravvenkat/forkline/internal/divergence"
	"github.com/sauravvenkat/forkline/internal/jsondiff"
)

// Grounded on nysm's internal/harness/golden.go: a deterministic result is
// rendered and compared byte-for-byte against a checked-in fixture, rather
// than asserted field by field.
func TestFormatDiffTextGolden(t *testing.T) {
	idxA := 1
	idxB := 1
	hashA := strings.Repeat("a", 64)
	hashB := strings.Repeat("b", 64)
	hashC := strings.Repeat("c", 64)

	result := divergence.Result{
		Status:      divergence.OutputDivergence,
		IdxA:        &idxA,
		IdxB:        &idxB,
		Explanation: "Step 1: output changed",
		OldStep: &divergence.StepSummary{
			Idx: 1, Name: "execute", InputHash: hashA, OutputHash: hashB, EventCount: 2,
		},
		NewStep: &divergence.StepSummary{
			Idx: 1, Name: "execute", InputHash: hashA, OutputHash: hashC, EventCount: 2,
		},
		OutputDiff: []jsondiff.Op{
			{Op: jsondiff.OpReplace, Path: "$.result", Old: "hello", New: "world"},
		},
		LastEqualIdx: 0,
		ContextA:     []divergence.StepSummary{{Idx: 0, Name: "plan"}},
		ContextB:     []divergence.StepSummary{{Idx: 0, Name: "plan"}},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "output_divergence_text", []byte(FormatDiffText(result)))
}
