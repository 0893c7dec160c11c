// Package jsondiff implements Forkline's structural JSON-patch differ
// (spec §4.2): a deterministic, dollar-rooted diff between two JSON-like
// values.
//
// Known limitation (spec §9 open question, preserved rather than
// silently changed): path segments are emitted verbatim. A key
// containing ".", "[", "]", or "$" will produce an ambiguous path; this
// grammar does not escape such keys. Callers should avoid such keys in
// payloads that will be diffed.
//
// Grounded on original_source/forkline/core/json_diff.py; the emission
// order and type-mismatch handling are ported exactly. Style follows
// github.com/roach88/nysm's internal/ir package (canon.Value-typed
// recursive walk with a sorted-key helper).
package jsondiff

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sauravvenkat/forkline/internal/canon"
)

// OpKind is the closed enumeration of JSON-patch operation kinds.
type OpKind string

const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
)

// Op is a single structural diff operation. Exactly one of Value (add),
// Old (remove), or Old+New (replace) is populated, per OpKind; MarshalJSON
// emits only the fields that kind uses so a JSON-null payload value is
// never confused with an absent field.
type Op struct {
	Op    OpKind `json:"op"`
	Path  string `json:"path"`
	Old   any    `json:"-"`
	New   any    `json:"-"`
	Value any    `json:"-"`
}

// MarshalJSON renders the op in the wire format from spec §4.2:
//
//	{"op":"add","path":...,"value":...}
//	{"op":"remove","path":...,"old":...}
//	{"op":"replace","path":...,"old":...,"new":...}
func (o Op) MarshalJSON() ([]byte, error) {
	switch o.Op {
	case OpAdd:
		return json.Marshal(struct {
			Op    OpKind `json:"op"`
			Path  string `json:"path"`
			Value any    `json:"value"`
		}{o.Op, o.Path, o.Value})
	case OpRemove:
		return json.Marshal(struct {
			Op   OpKind `json:"op"`
			Path string `json:"path"`
			Old  any    `json:"old"`
		}{o.Op, o.Path, o.Old})
	case OpReplace:
		return json.Marshal(struct {
			Op   OpKind `json:"op"`
			Path string `json:"path"`
			Old  any    `json:"old"`
			New  any    `json:"new"`
		}{o.Op, o.Path, o.Old, o.New})
	default:
		return json.Marshal(struct {
			Op   OpKind `json:"op"`
			Path string `json:"path"`
		}{o.Op, o.Path})
	}
}

// Diff produces a deterministic, ordered JSON-patch between old and new,
// rooted at "$" unless rootPath is supplied.
//
// Emission order (spec §4.2, fixed):
//  1. At an object node: removed keys ascending, then added keys
//     ascending, then recursion into common keys ascending.
//  2. At an array node: index 0 upward, recursing; trailing positions
//     from the longer side emit remove (old longer) or add (new longer).
//  3. A type mismatch at a node emits a single replace for the whole
//     subtree. Int and Float are treated as the same numeric kind:
//     equal if numerically equal, otherwise replace.
func Diff(old, new any, rootPath ...string) ([]Op, error) {
	path := "$"
	if len(rootPath) > 0 && rootPath[0] != "" {
		path = rootPath[0]
	}

	oldV, err := canon.FromAny(old)
	if err != nil {
		return nil, fmt.Errorf("jsondiff: old: %w", err)
	}
	newV, err := canon.FromAny(new)
	if err != nil {
		return nil, fmt.Errorf("jsondiff: new: %w", err)
	}

	return diffValue(oldV, newV, path), nil
}

func diffValue(old, new canon.Value, path string) []Op {
	ops := []Op{}

	_, oldNull := old.(canon.Null)
	_, newNull := new.(canon.Null)
	if oldNull && newNull {
		return ops
	}

	oldNum, oldIsNum := asNumeric(old)
	newNum, newIsNum := asNumeric(new)
	if oldIsNum && newIsNum {
		if oldNum != newNum {
			return []Op{{Op: OpReplace, Path: path, Old: canon.ToAny(old), New: canon.ToAny(new)}}
		}
		return ops
	}

	if sameKind(old, new) {
		switch o := old.(type) {
		case canon.Object:
			n := new.(canon.Object)
			return diffObject(o, n, path)
		case canon.Array:
			n := new.(canon.Array)
			return diffArray(o, n, path)
		default:
			if !valueEqual(old, new) {
				return []Op{{Op: OpReplace, Path: path, Old: canon.ToAny(old), New: canon.ToAny(new)}}
			}
			return ops
		}
	}

	return []Op{{Op: OpReplace, Path: path, Old: canon.ToAny(old), New: canon.ToAny(new)}}
}

func diffObject(old, new canon.Object, path string) []Op {
	ops := []Op{}

	oldKeys := old.SortedKeys()
	newKeySet := make(map[string]bool, len(new))
	for k := range new {
		newKeySet[k] = true
	}
	oldKeySet := make(map[string]bool, len(old))
	for k := range old {
		oldKeySet[k] = true
	}

	var removed, added, common []string
	for _, k := range oldKeys {
		if newKeySet[k] {
			common = append(common, k)
		} else {
			removed = append(removed, k)
		}
	}
	for k := range new {
		if !oldKeySet[k] {
			added = append(added, k)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)
	sort.Strings(common)

	for _, k := range removed {
		ops = append(ops, Op{Op: OpRemove, Path: childPath(path, k), Old: canon.ToAny(old[k])})
	}
	for _, k := range added {
		ops = append(ops, Op{Op: OpAdd, Path: childPath(path, k), Value: canon.ToAny(new[k])})
	}
	for _, k := range common {
		ops = append(ops, diffValue(old[k], new[k], childPath(path, k))...)
	}
	return ops
}

func diffArray(old, new canon.Array, path string) []Op {
	ops := []Op{}

	minLen := len(old)
	if len(new) < minLen {
		minLen = len(new)
	}
	for i := 0; i < minLen; i++ {
		ops = append(ops, diffValue(old[i], new[i], indexPath(path, i))...)
	}

	if len(old) > len(new) {
		for i := len(new); i < len(old); i++ {
			ops = append(ops, Op{Op: OpRemove, Path: indexPath(path, i), Old: canon.ToAny(old[i])})
		}
	} else if len(new) > len(old) {
		for i := len(old); i < len(new); i++ {
			ops = append(ops, Op{Op: OpAdd, Path: indexPath(path, i), Value: canon.ToAny(new[i])})
		}
	}
	return ops
}

func childPath(path, key string) string {
	return path + "." + key
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

// sameKind reports whether old and new share a diffable kind. Object and
// Array must match their own type; everything else (Null/Bool/String/
// Bytes) must match exactly, with numeric kinds handled separately by
// asNumeric.
func sameKind(a, b canon.Value) bool {
	switch a.(type) {
	case canon.Object:
		_, ok := b.(canon.Object)
		return ok
	case canon.Array:
		_, ok := b.(canon.Array)
		return ok
	case canon.Bool:
		_, ok := b.(canon.Bool)
		return ok
	case canon.String:
		_, ok := b.(canon.String)
		return ok
	case canon.Bytes:
		_, ok := b.(canon.Bytes)
		return ok
	case canon.Null:
		_, ok := b.(canon.Null)
		return ok
	default:
		return false
	}
}

// asNumeric reports whether v is Int or Float and its numeric value, so
// that int/float pairs are compared as the same kind (spec §4.2 rule 3).
func asNumeric(v canon.Value) (float64, bool) {
	switch val := v.(type) {
	case canon.Int:
		return float64(val), true
	case canon.Float:
		return float64(val), true
	default:
		return 0, false
	}
}

func valueEqual(a, b canon.Value) bool {
	ca, errA := canon.Canon(a)
	cb, errB := canon.Canon(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ca) == string(cb)
}
