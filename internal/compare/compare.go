// Package compare implements Forkline's semantic comparator (spec
// §4.5, C6): a field-path-oriented comparator used by the replay path,
// distinct from the structural JSON-patch differ in internal/jsondiff.
//
// No reference implementation of this component survived into
// original_source (its test file, tests/unit/test_replay_engine.py,
// is an import list with no bodies); the shape here follows spec.md
// §4.5 directly, using that import list for naming, and is written in
// the same deterministic-recursive-walk idiom as internal/jsondiff.
package compare

import (
	"fmt"
	"sort"

	"github.com/sauravvenkat/forkline/internal/trace"
)

// Missing is the sentinel used for a key or value absent on one side
// of a comparison.
const Missing = "<missing>"

// DefaultIgnoreKeys are the key names skipped wherever they appear
// during event comparison, by default (spec §4.5).
var DefaultIgnoreKeys = map[string]bool{
	"created_at": true,
	"ts":         true,
	"timestamp":  true,
}

// FieldDiff is a single field-level difference found by DeepCompare.
type FieldDiff struct {
	Path     string
	Expected any
	Actual   any
}

// DeepCompare walks expected and actual in lockstep and returns every
// field-level difference found, skipping any key present in
// ignoreKeys wherever it appears.
func DeepCompare(expected, actual any, path string, ignoreKeys map[string]bool) []FieldDiff {
	if ignoreKeys == nil {
		ignoreKeys = map[string]bool{}
	}
	return deepCompare(expected, actual, path, ignoreKeys)
}

func deepCompare(expected, actual any, path string, ignoreKeys map[string]bool) []FieldDiff {
	expKind := kindOf(expected)
	actKind := kindOf(actual)

	if expKind != actKind {
		return []FieldDiff{{Path: path, Expected: expKind, Actual: actKind}}
	}

	switch expKind {
	case kindMap:
		return compareMaps(expected.(map[string]any), actual.(map[string]any), path, ignoreKeys)
	case kindSlice:
		return compareSlices(expected.([]any), actual.([]any), path, ignoreKeys)
	default:
		if !valuesEqual(expected, actual) {
			return []FieldDiff{{Path: path, Expected: expected, Actual: actual}}
		}
		return nil
	}
}

func compareMaps(expected, actual map[string]any, path string, ignoreKeys map[string]bool) []FieldDiff {
	keySet := make(map[string]struct{}, len(expected)+len(actual))
	for k := range expected {
		keySet[k] = struct{}{}
	}
	for k := range actual {
		keySet[k] = struct{}{}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var diffs []FieldDiff
	for _, key := range keys {
		if ignoreKeys[key] {
			continue
		}
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}

		expVal, expOK := expected[key]
		actVal, actOK := actual[key]

		switch {
		case expOK && !actOK:
			diffs = append(diffs, FieldDiff{Path: childPath, Expected: expVal, Actual: Missing})
		case !expOK && actOK:
			diffs = append(diffs, FieldDiff{Path: childPath, Expected: Missing, Actual: actVal})
		default:
			diffs = append(diffs, deepCompare(expVal, actVal, childPath, ignoreKeys)...)
		}
	}
	return diffs
}

func compareSlices(expected, actual []any, path string, ignoreKeys map[string]bool) []FieldDiff {
	var diffs []FieldDiff
	if len(expected) != len(actual) {
		diffs = append(diffs, FieldDiff{
			Path:     path + ".(length)",
			Expected: len(expected),
			Actual:   len(actual),
		})
	}

	n := len(expected)
	if len(actual) < n {
		n = len(actual)
	}
	for i := 0; i < n; i++ {
		childPath := fmt.Sprintf("%s[%d]", path, i)
		diffs = append(diffs, deepCompare(expected[i], actual[i], childPath, ignoreKeys)...)
	}
	return diffs
}

type valueKind string

const (
	kindNull   valueKind = "null"
	kindBool   valueKind = "bool"
	kindNumber valueKind = "number"
	kindString valueKind = "string"
	kindMap    valueKind = "object"
	kindSlice  valueKind = "array"
	kindOther  valueKind = "other"
)

func kindOf(v any) valueKind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case string:
		return kindString
	case map[string]any:
		return kindMap
	case []any:
		return kindSlice
	case int, int64, float64, float32, uint, uint64:
		return kindNumber
	default:
		return kindOther
	}
}

func valuesEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CompareEvent compares two events' payloads, adding a type-field diff
// when the events' types differ.
func CompareEvent(expected, actual trace.Event) []FieldDiff {
	var diffs []FieldDiff
	if expected.Type != actual.Type {
		diffs = append(diffs, FieldDiff{Path: "type", Expected: expected.Type, Actual: actual.Type})
	}
	diffs = append(diffs, DeepCompare(anyPayload(expected.Payload), anyPayload(actual.Payload), "", DefaultIgnoreKeys)...)
	return diffs
}

func anyPayload(p map[string]any) any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

// Reason categorizes why compare_step halted.
type Reason string

const (
	ReasonNameMismatch  Reason = "name_mismatch"
	ReasonEventCount    Reason = "event_count_mismatch"
	ReasonEventMismatch Reason = "event_mismatch"
)

// DivergencePoint pinpoints where CompareStep first found a
// difference.
type DivergencePoint struct {
	StepIdx   int
	StepName  string
	EventIdx  *int
	Reason    Reason
	FieldDiff []FieldDiff
}

// CompareStep compares two steps, halting at the first difference
// found: name, then event count (with contextual type lists), then
// the first event-level diff.
func CompareStep(expected, actual trace.Step) (bool, *DivergencePoint) {
	if expected.Name != actual.Name {
		return false, &DivergencePoint{
			StepIdx:  expected.Idx,
			StepName: expected.Name,
			Reason:   ReasonNameMismatch,
			FieldDiff: []FieldDiff{
				{Path: "name", Expected: expected.Name, Actual: actual.Name},
			},
		}
	}

	if len(expected.Events) != len(actual.Events) {
		return false, &DivergencePoint{
			StepIdx:  expected.Idx,
			StepName: expected.Name,
			Reason:   ReasonEventCount,
			FieldDiff: []FieldDiff{
				{Path: "events.(length)", Expected: eventTypes(expected.Events), Actual: eventTypes(actual.Events)},
			},
		}
	}

	for i := range expected.Events {
		diffs := CompareEvent(expected.Events[i], actual.Events[i])
		if len(diffs) > 0 {
			idx := i
			return false, &DivergencePoint{
				StepIdx:   expected.Idx,
				StepName:  expected.Name,
				EventIdx:  &idx,
				Reason:    ReasonEventMismatch,
				FieldDiff: diffs,
			}
		}
	}

	return true, nil
}

func eventTypes(events []trace.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
