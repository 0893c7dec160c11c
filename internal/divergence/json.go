package divergence

import "github.com/sauravvenkat/forkline/internal/jsondiff"

// ResultDoc is the JSON-serializable shape of a Result, mirroring
// original_source's FirstDivergenceResult.to_dict().
type ResultDoc struct {
	Status       Status        `json:"status"`
	IdxA         *int          `json:"idx_a"`
	IdxB         *int          `json:"idx_b"`
	Explanation  string        `json:"explanation"`
	LastEqualIdx int           `json:"last_equal_idx"`
	OldStep      *StepSummary  `json:"old_step"`
	NewStep      *StepSummary  `json:"new_step"`
	InputDiff    []any         `json:"input_diff"`
	OutputDiff   []any         `json:"output_diff"`
	ContextA     []StepSummary `json:"context_a"`
	ContextB     []StepSummary `json:"context_b"`
}

// ToDoc converts r into its JSON-serializable form.
func (r Result) ToDoc() ResultDoc {
	return ResultDoc{
		Status:       r.Status,
		IdxA:         r.IdxA,
		IdxB:         r.IdxB,
		Explanation:  r.Explanation,
		LastEqualIdx: r.LastEqualIdx,
		OldStep:      r.OldStep,
		NewStep:      r.NewStep,
		InputDiff:    opsToAny(r.InputDiff),
		OutputDiff:   opsToAny(r.OutputDiff),
		ContextA:     nonNilSummaries(r.ContextA),
		ContextB:     nonNilSummaries(r.ContextB),
	}
}

func opsToAny(ops []jsondiff.Op) []any {
	if ops == nil {
		return nil
	}
	out := make([]any, len(ops))
	for i, op := range ops {
		out[i] = op
	}
	return out
}

func nonNilSummaries(s []StepSummary) []StepSummary {
	if s == nil {
		return []StepSummary{}
	}
	return s
}
