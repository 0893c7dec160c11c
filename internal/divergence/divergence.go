// Package divergence implements Forkline's first-divergence engine
// (spec §4.5, C5): step-by-step comparison of two runs with a resync
// window for insertions/deletions, deterministic classification of
// the first mismatch, and structured JSON-patch output on the
// diverging step.
//
// Ported nearly verbatim from
// original_source/forkline/core/first_divergence.py — the resync
// search order, classification priority, and explanation templates
// are load-bearing for cross-implementation agreement and are kept
// byte-for-byte equivalent in behavior. Error/result shaping follows
// github.com/roach88/nysm's internal/engine style of typed result
// structs with a small closed status enum.
package divergence

import (
	"fmt"

	"github.com/sauravvenkat/forkline/internal/canon"
	"github.com/sauravvenkat/forkline/internal/jsondiff"
	"github.com/sauravvenkat/forkline/internal/trace"
)

// Status is the closed classification of a comparison's outcome
// (invariant I4: at most one divergence reported per comparison).
type Status string

const (
	ExactMatch       Status = "exact_match"
	InputDivergence  Status = "input_divergence"
	OutputDivergence Status = "output_divergence"
	OpDivergence     Status = "op_divergence"
	MissingSteps     Status = "missing_steps"
	ExtraSteps       Status = "extra_steps"
	ErrorDivergence  Status = "error_divergence"
)

// StepSummary is a compact, comparison-relevant summary of a step.
type StepSummary struct {
	Idx        int    `json:"idx"`
	Name       string `json:"name"`
	InputHash  string `json:"input_hash"`
	OutputHash string `json:"output_hash"`
	EventCount int    `json:"event_count"`
	HasError   bool   `json:"has_error"`
}

// Result is the outcome of a first-divergence comparison between two
// runs.
type Result struct {
	Status       Status
	IdxA         *int
	IdxB         *int
	Explanation  string
	OldStep      *StepSummary
	NewStep      *StepSummary
	InputDiff    []jsondiff.Op
	OutputDiff   []jsondiff.Op
	LastEqualIdx int
	ContextA     []StepSummary
	ContextB     []StepSummary
}

// Show selects which diffs are computed for a diverging step.
type Show string

const (
	ShowInput  Show = "input"
	ShowOutput Show = "output"
	ShowBoth   Show = "both"
)

// Options configures FindFirstDivergence.
type Options struct {
	// Window is the resync window size (default 10 if zero).
	Window int
	// ContextSize is the number of steps before/after a divergence to
	// include as context (default 2 if zero).
	ContextSize int
	// Show selects which diffs to compute (default ShowBoth if empty).
	Show Show
}

func (o Options) normalized() Options {
	if o.Window <= 0 {
		o.Window = 10
	}
	if o.ContextSize <= 0 {
		o.ContextSize = 2
	}
	if o.Show == "" {
		o.Show = ShowBoth
	}
	return o
}

func stepEventsByType(step trace.Step, eventType string) []map[string]any {
	var out []map[string]any
	for _, e := range step.Events {
		if e.Type == eventType {
			out = append(out, e.Payload)
		}
	}
	return out
}

func stepInputHash(step trace.Step) (string, error) {
	data, err := canon.Canon(toAnySlice(stepEventsByType(step, trace.EventInput)))
	if err != nil {
		return "", err
	}
	return canon.SHA256Hex(data), nil
}

func stepOutputHash(step trace.Step) (string, error) {
	data, err := canon.Canon(toAnySlice(stepEventsByType(step, trace.EventOutput)))
	if err != nil {
		return "", err
	}
	return canon.SHA256Hex(data), nil
}

func stepHasError(step trace.Step) bool {
	for _, e := range step.Events {
		if e.Type == trace.EventError {
			return true
		}
	}
	return false
}

type stepSignature struct {
	name      string
	inputHash string
}

func computeStepSignature(step trace.Step) (stepSignature, error) {
	h, err := stepInputHash(step)
	if err != nil {
		return stepSignature{}, err
	}
	return stepSignature{name: step.Name, inputHash: h}, nil
}

func makeSummary(step trace.Step) (StepSummary, error) {
	inputHash, err := stepInputHash(step)
	if err != nil {
		return StepSummary{}, err
	}
	outputHash, err := stepOutputHash(step)
	if err != nil {
		return StepSummary{}, err
	}
	return StepSummary{
		Idx:        step.Idx,
		Name:       step.Name,
		InputHash:  inputHash,
		OutputHash: outputHash,
		EventCount: len(step.Events),
		HasError:   stepHasError(step),
	}, nil
}

func getContext(steps []trace.Step, center, size int) ([]StepSummary, error) {
	start := center - size
	if start < 0 {
		start = 0
	}
	end := center + size + 1
	if end > len(steps) {
		end = len(steps)
	}
	out := make([]StepSummary, 0, end-start)
	for i := start; i < end; i++ {
		summary, err := makeSummary(steps[i])
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// classifyStepDivergence determines why two steps at the same
// position differ, in priority order: operation name, input, error
// state, output, then a catch-all full-event comparison.
func classifyStepDivergence(a, b trace.Step) (Status, error) {
	if a.Name != b.Name {
		return OpDivergence, nil
	}

	inputHashA, err := stepInputHash(a)
	if err != nil {
		return "", err
	}
	inputHashB, err := stepInputHash(b)
	if err != nil {
		return "", err
	}
	if inputHashA != inputHashB {
		return InputDivergence, nil
	}

	hasErrA := stepHasError(a)
	hasErrB := stepHasError(b)
	if hasErrA != hasErrB {
		return ErrorDivergence, nil
	}
	if hasErrA && hasErrB {
		errorsA, err := canon.Canon(toAnySlice(stepEventsByType(a, trace.EventError)))
		if err != nil {
			return "", err
		}
		errorsB, err := canon.Canon(toAnySlice(stepEventsByType(b, trace.EventError)))
		if err != nil {
			return "", err
		}
		if string(errorsA) != string(errorsB) {
			return ErrorDivergence, nil
		}
	}

	outputHashA, err := stepOutputHash(a)
	if err != nil {
		return "", err
	}
	outputHashB, err := stepOutputHash(b)
	if err != nil {
		return "", err
	}
	if outputHashA != outputHashB {
		return OutputDivergence, nil
	}

	allA, err := canon.Canon(allEvents(a))
	if err != nil {
		return "", err
	}
	allB, err := canon.Canon(allEvents(b))
	if err != nil {
		return "", err
	}
	if string(allA) != string(allB) {
		return OutputDivergence, nil
	}

	return ExactMatch, nil
}

func allEvents(step trace.Step) []any {
	out := make([]any, len(step.Events))
	for i, e := range step.Events {
		out[i] = []any{e.Type, e.Payload}
	}
	return out
}

func toAnySlice(maps []map[string]any) []any {
	out := make([]any, len(maps))
	for i, m := range maps {
		out[i] = m
	}
	return out
}

// tryResync finds the earliest matching step-signature pair within
// the resync window, iterating by increasing combined distance from
// start so the closest resync point is found first. Ties are broken
// by smaller offsetA.
func tryResync(stepsA, stepsB []trace.Step, start, window int) (ia, ib int, found bool, err error) {
	for totalDist := 1; totalDist <= 2*window; totalDist++ {
		limit := totalDist + 1
		if limit > window {
			limit = window
		}
		for offsetA := 0; offsetA < limit; offsetA++ {
			offsetB := totalDist - offsetA
			if offsetB < 0 || offsetB >= window {
				continue
			}
			candidateA := start + offsetA
			candidateB := start + offsetB
			if candidateA >= len(stepsA) || candidateB >= len(stepsB) {
				continue
			}
			sigA, err := computeStepSignature(stepsA[candidateA])
			if err != nil {
				return 0, 0, false, err
			}
			sigB, err := computeStepSignature(stepsB[candidateB])
			if err != nil {
				return 0, 0, false, err
			}
			if sigA == sigB {
				return candidateA, candidateB, true, nil
			}
		}
	}
	return 0, 0, false, nil
}

func makeExplanation(status Status, stepA, stepB *trace.Step, idxA, idxB *int, gapA, gapB int) string {
	switch status {
	case ExactMatch:
		return "Runs are identical"
	case OpDivergence:
		nameA, nameB := "?", "?"
		if stepA != nil {
			nameA = stepA.Name
		}
		if stepB != nil {
			nameB = stepB.Name
		}
		return fmt.Sprintf("Step %d: operation mismatch ('%s' vs '%s')", derefInt(idxA), nameA, nameB)
	case InputDivergence:
		name := "?"
		if stepA != nil {
			name = stepA.Name
		}
		return fmt.Sprintf("Step %d '%s': input differs", derefInt(idxA), name)
	case OutputDivergence:
		name := "?"
		if stepA != nil {
			name = stepA.Name
		}
		return fmt.Sprintf("Step %d '%s': output differs (same input)", derefInt(idxA), name)
	case ErrorDivergence:
		name := "?"
		if stepA != nil {
			name = stepA.Name
		}
		return fmt.Sprintf("Step %d '%s': error state differs", derefInt(idxA), name)
	case MissingSteps:
		if gapA > 1 {
			return fmt.Sprintf("Steps %d..%d from run_a missing in run_b", derefInt(idxA), derefInt(idxA)+gapA-1)
		}
		return fmt.Sprintf("Step %d from run_a missing in run_b", derefInt(idxA))
	case ExtraSteps:
		if gapB > 1 {
			return fmt.Sprintf("Steps %d..%d in run_b not present in run_a", derefInt(idxB), derefInt(idxB)+gapB-1)
		}
		return fmt.Sprintf("Step %d in run_b not present in run_a", derefInt(idxB))
	default:
		return fmt.Sprintf("Unknown divergence at indices (%s, %s)", fmtIntPtr(idxA), fmtIntPtr(idxB))
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func fmtIntPtr(p *int) string {
	if p == nil {
		return "None"
	}
	return fmt.Sprintf("%d", *p)
}

func computeDiffs(stepA, stepB *trace.Step, status Status, show Show) ([]jsondiff.Op, []jsondiff.Op, error) {
	if stepA == nil || stepB == nil {
		return nil, nil, nil
	}

	var inputDiff, outputDiff []jsondiff.Op

	// When each step has exactly one event of the type, its payload is
	// diffed directly (paths read "$.field"); otherwise the payload lists
	// are diffed (paths read "$[i].field").
	subjects := func(eventType string) (any, any) {
		pa := stepEventsByType(*stepA, eventType)
		pb := stepEventsByType(*stepB, eventType)
		if len(pa) == 1 && len(pb) == 1 {
			return pa[0], pb[0]
		}
		return toAnySlice(pa), toAnySlice(pb)
	}

	if status == InputDivergence && (show == ShowInput || show == ShowBoth) {
		ops, err := jsondiff.Diff(subjects(trace.EventInput))
		if err != nil {
			return nil, nil, err
		}
		inputDiff = ops
	}

	if status == OutputDivergence && (show == ShowOutput || show == ShowBoth) {
		ops, err := jsondiff.Diff(subjects(trace.EventOutput))
		if err != nil {
			return nil, nil, err
		}
		outputDiff = ops
	}

	return inputDiff, outputDiff, nil
}

func intPtr(v int) *int { return &v }

// FindFirstDivergence compares runA against runB and returns the first
// observable point of divergence (spec §4.5). At most one divergence
// is ever reported (invariant I4); steps are compared in idx order
// and events within a step in positional order (invariant I6).
func FindFirstDivergence(runA, runB trace.Run, opts Options) (Result, error) {
	opts = opts.normalized()
	stepsA := runA.Steps
	stepsB := runB.Steps
	lastEqual := -1

	i := 0
	for i < len(stepsA) && i < len(stepsB) {
		status, err := classifyStepDivergence(stepsA[i], stepsB[i])
		if err != nil {
			return Result{}, err
		}
		if status == ExactMatch {
			lastEqual = i
			i++
			continue
		}

		ia, ib, resynced, err := tryResync(stepsA, stepsB, i, opts.Window)
		if err != nil {
			return Result{}, err
		}
		if resynced {
			gapA := ia - i
			gapB := ib - i

			if gapA > 0 && gapB == 0 {
				return buildGapResult(stepsA, stepsB, MissingSteps, i, i, lastEqual, gapA, 0, opts)
			}
			if gapB > 0 && gapA == 0 {
				return buildGapResult(stepsA, stepsB, ExtraSteps, i, i, lastEqual, 0, gapB, opts)
			}
			// Both gaps positive: steps were replaced, fall through to
			// classify at the current position (preserves the original
			// implementation's choice to treat this as a replacement
			// rather than a resync).
		}

		oldSummary, err := makeSummary(stepsA[i])
		if err != nil {
			return Result{}, err
		}
		newSummary, err := makeSummary(stepsB[i])
		if err != nil {
			return Result{}, err
		}
		inputDiff, outputDiff, err := computeDiffs(&stepsA[i], &stepsB[i], status, opts.Show)
		if err != nil {
			return Result{}, err
		}
		contextA, err := getContext(stepsA, i, opts.ContextSize)
		if err != nil {
			return Result{}, err
		}
		contextB, err := getContext(stepsB, i, opts.ContextSize)
		if err != nil {
			return Result{}, err
		}

		return Result{
			Status:       status,
			IdxA:         intPtr(i),
			IdxB:         intPtr(i),
			Explanation:  makeExplanation(status, &stepsA[i], &stepsB[i], intPtr(i), intPtr(i), 0, 0),
			OldStep:      &oldSummary,
			NewStep:      &newSummary,
			InputDiff:    inputDiff,
			OutputDiff:   outputDiff,
			LastEqualIdx: lastEqual,
			ContextA:     contextA,
			ContextB:     contextB,
		}, nil
	}

	if len(stepsA) > len(stepsB) {
		idx := len(stepsB)
		gap := len(stepsA) - len(stepsB)
		oldSummary, err := makeSummary(stepsA[idx])
		if err != nil {
			return Result{}, err
		}
		contextA, err := getContext(stepsA, idx, opts.ContextSize)
		if err != nil {
			return Result{}, err
		}
		var contextB []StepSummary
		if len(stepsB) > 0 {
			contextB, err = getContext(stepsB, len(stepsB)-1, opts.ContextSize)
			if err != nil {
				return Result{}, err
			}
		}
		return Result{
			Status:       MissingSteps,
			IdxA:         intPtr(idx),
			IdxB:         nil,
			Explanation:  makeExplanation(MissingSteps, &stepsA[idx], nil, intPtr(idx), nil, gap, 0),
			OldStep:      &oldSummary,
			NewStep:      nil,
			LastEqualIdx: lastEqual,
			ContextA:     contextA,
			ContextB:     contextB,
		}, nil
	}

	if len(stepsB) > len(stepsA) {
		idx := len(stepsA)
		gap := len(stepsB) - len(stepsA)
		newSummary, err := makeSummary(stepsB[idx])
		if err != nil {
			return Result{}, err
		}
		contextB, err := getContext(stepsB, idx, opts.ContextSize)
		if err != nil {
			return Result{}, err
		}
		var contextA []StepSummary
		if len(stepsA) > 0 {
			contextA, err = getContext(stepsA, len(stepsA)-1, opts.ContextSize)
			if err != nil {
				return Result{}, err
			}
		}
		return Result{
			Status:       ExtraSteps,
			IdxA:         nil,
			IdxB:         intPtr(idx),
			Explanation:  makeExplanation(ExtraSteps, nil, &stepsB[idx], nil, intPtr(idx), 0, gap),
			OldStep:      nil,
			NewStep:      &newSummary,
			LastEqualIdx: lastEqual,
			ContextA:     contextA,
			ContextB:     contextB,
		}, nil
	}

	return Result{
		Status:       ExactMatch,
		Explanation:  fmt.Sprintf("Runs are identical (%d steps compared)", len(stepsA)),
		LastEqualIdx: lastEqual,
		ContextA:     []StepSummary{},
		ContextB:     []StepSummary{},
	}, nil
}

func buildGapResult(stepsA, stepsB []trace.Step, status Status, idxA, idxB, lastEqual, gapA, gapB int, opts Options) (Result, error) {
	oldSummary, err := makeSummary(stepsA[idxA])
	if err != nil {
		return Result{}, err
	}
	newSummary, err := makeSummary(stepsB[idxB])
	if err != nil {
		return Result{}, err
	}
	contextA, err := getContext(stepsA, idxA, opts.ContextSize)
	if err != nil {
		return Result{}, err
	}
	contextB, err := getContext(stepsB, idxB, opts.ContextSize)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Status:       status,
		IdxA:         intPtr(idxA),
		IdxB:         intPtr(idxB),
		Explanation:  makeExplanation(status, &stepsA[idxA], &stepsB[idxB], intPtr(idxA), intPtr(idxB), gapA, gapB),
		OldStep:      &oldSummary,
		NewStep:      &newSummary,
		LastEqualIdx: lastEqual,
		ContextA:     contextA,
		ContextB:     contextB,
	}, nil
}
