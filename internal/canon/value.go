// Package canon implements Forkline's canonicalizer (the hashing and
// equality substrate used by every other core package).
//
// Canonicalization maps a value drawn from the canonical value domain —
// null, bool, int, float, string, byte sequence, ordered array, or
// string-keyed object — to a deterministic byte representation. Two
// values that are canonically equal always produce identical bytes,
// independent of process, host, or locale.
//
// Grounded on github.com/roach88/nysm's internal/ir package (sealed
// IRValue domain, RFC-8785-flavored canonical JSON), generalized here to
// admit floats and raw byte sequences, which nysm's IR forbids.
package canon

import (
	"fmt"
	"sort"
)

// Value is a sealed interface over the canonical value domain of spec §3.
// Only the types in this file implement it.
type Value interface {
	isCanonValue()
}

// Null represents the JSON null value.
type Null struct{}

func (Null) isCanonValue() {}

// Bool is a boolean value. Never equal to an Int under canonicalization,
// even when compared numerically (invariant I1/P4).
type Bool bool

func (Bool) isCanonValue() {}

// Int is a signed 64-bit integer value.
type Int int64

func (Int) isCanonValue() {}

// Float is a 64-bit floating point value, including NaN and the
// infinities. The canonical encoder does not tag floats: a Float with an
// integral value encodes like the equal Int (Float(1.0) and Int(1) both
// encode as 1).
type Float float64

func (Float) isCanonValue() {}

// String is a Unicode string. Canonicalization applies NFC normalization
// and CRLF/CR-to-LF newline folding before encoding.
type String string

func (String) isCanonValue() {}

// Bytes is an opaque byte sequence. Nested inside a compound value it
// canonicalizes to the `{"__bytes__":true,"sha256":...,"length":...}`
// envelope so only its content digest participates in equality; at the
// top level it canonicalizes to itself, unchanged.
type Bytes []byte

func (Bytes) isCanonValue() {}

// Array is an ordered sequence of canonical values.
type Array []Value

func (Array) isCanonValue() {}

// Object is a mapping from string keys to canonical values. Key order is
// not significant: two Objects with the same entries in different
// insertion order canonicalize identically (invariant I1/P2).
type Object map[string]Value

func (Object) isCanonValue() {}

// SortedKeys returns the object's keys in ascending string order, the
// order the canonical encoder emits them in.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromAny converts a plain Go value (as produced by encoding/json's
// default decoding, or assembled by hand with map[string]any/[]any) into
// the canonical Value domain. It is the ingestion boundary for payloads
// coming from callers that don't construct canon.Value directly.
//
// Accepted inputs: nil, bool, string, []byte, Value (passed through),
// any integer kind, float32/float64, map[string]any, []any, and
// json.Number (as produced by a decoder with UseNumber()).
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case []byte:
		return Bytes(val), nil
	case int:
		return Int(int64(val)), nil
	case int8:
		return Int(int64(val)), nil
	case int16:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(int64(val)), nil
	case uint8:
		return Int(int64(val)), nil
	case uint16:
		return Int(int64(val)), nil
	case uint32:
		return Int(int64(val)), nil
	case uint64:
		return Int(int64(val)), nil
	case float32:
		return Float(float64(val)), nil
	case float64:
		return Float(val), nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			cv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = cv
		}
		return obj, nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			cv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = cv
		}
		return arr, nil
	default:
		return fromJSONNumber(val)
	}
}

// ToAny converts a canon.Value back into a plain Go value suitable for
// encoding/json or further inspection. Bytes convert to the same
// `__bytes__` envelope used when nested inside a compound value, since
// the raw bytes are not recoverable from canonical form alone.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Bytes:
		return bytesEnvelope(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return fmt.Sprintf("%v", val)
	}
}
