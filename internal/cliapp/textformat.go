package cliapp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sauravvenkat/forkline/internal/divergence"
	"github.com/sauravvenkat/forkline/internal/jsondiff"
)

const (
	valuePreviewLimit = 40
	diffOpsCap        = 10
)

// FormatDiffText renders a divergence.Result as the fixed multi-line
// text template (spec §6), following
// original_source/forkline/cli.py's _format_text byte-for-byte in
// structure.
func FormatDiffText(result divergence.Result) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("First divergence: %s", result.Status))
	lines = append(lines, fmt.Sprintf("  %s", result.Explanation))
	lines = append(lines, "")

	if result.OldStep != nil {
		lines = append(lines, renderStepSummary("Run A", *result.OldStep)...)
	}
	if result.NewStep != nil {
		lines = append(lines, renderStepSummary("Run B", *result.NewStep)...)
	}

	if len(result.InputDiff) > 0 {
		lines = append(lines, "  Input diff:")
		lines = append(lines, renderOps(result.InputDiff)...)
		lines = append(lines, "")
	}

	if len(result.OutputDiff) > 0 {
		lines = append(lines, "  Output diff:")
		lines = append(lines, renderOps(result.OutputDiff)...)
		lines = append(lines, "")
	}

	lines = append(lines, fmt.Sprintf("  Last equal: step %d", result.LastEqualIdx))

	if len(result.ContextA) > 0 {
		lines = append(lines, fmt.Sprintf("  Context A: [%s]", renderContext(result.ContextA)))
	}
	if len(result.ContextB) > 0 {
		lines = append(lines, fmt.Sprintf("  Context B: [%s]", renderContext(result.ContextB)))
	}

	return strings.Join(lines, "\n")
}

func renderStepSummary(label string, s divergence.StepSummary) []string {
	return []string{
		fmt.Sprintf("  %s step %d '%s':", label, s.Idx, s.Name),
		fmt.Sprintf("    input_hash:  %s...", truncate(s.InputHash, 16)),
		fmt.Sprintf("    output_hash: %s...", truncate(s.OutputHash, 16)),
		fmt.Sprintf("    events: %d", s.EventCount),
		fmt.Sprintf("    has_error: %t", s.HasError),
		"",
	}
}

func renderOps(ops []jsondiff.Op) []string {
	var lines []string
	limit := len(ops)
	if limit > diffOpsCap {
		limit = diffOpsCap
	}
	for _, op := range ops[:limit] {
		lines = append(lines, fmt.Sprintf("    %s %s: %s", op.Op, op.Path, compactValue(op)))
	}
	if len(ops) > diffOpsCap {
		lines = append(lines, fmt.Sprintf("    ... and %d more operations", len(ops)-diffOpsCap))
	}
	return lines
}

func compactValue(op jsondiff.Op) string {
	switch op.Op {
	case jsondiff.OpReplace:
		return fmt.Sprintf("%s -> %s", previewJSON(op.Old), previewJSON(op.New))
	case jsondiff.OpAdd:
		return previewJSON(op.Value)
	case jsondiff.OpRemove:
		return previewJSON(op.Old)
	default:
		return ""
	}
}

func previewJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(data)
	if len(s) > valuePreviewLimit {
		return s[:valuePreviewLimit-3] + "..."
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func renderContext(summaries []divergence.StepSummary) string {
	parts := make([]string, len(summaries))
	for i, s := range summaries {
		parts[i] = fmt.Sprintf("step %d '%s'", s.Idx, s.Name)
	}
	return strings.Join(parts, ", ")
}
