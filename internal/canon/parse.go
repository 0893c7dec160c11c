package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Parse decodes JSON bytes into the canonical Value domain, preserving
// the int/float distinction: a JSON number with no fractional part or
// exponent becomes an Int, anything else becomes a Float. This is the
// inverse needed for the round-trip property (P15):
// Canon(Parse(Canon(x))) == Canon(x) for JSON-representable x.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("canon: parse: %w", err)
	}
	return decodeAny(raw)
}

func decodeAny(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return fromJSONNumber(val)
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			cv, err := decodeAny(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = cv
		}
		return obj, nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			cv, err := decodeAny(elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = cv
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported decoded type %T", raw)
	}
}

// fromJSONNumber classifies a json.Number as Int or Float based on its
// literal form. Any other type is rejected with an error.
func fromJSONNumber(v any) (Value, error) {
	num, ok := v.(json.Number)
	if !ok {
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	s := string(num)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number literal %q: %w", s, err)
	}
	return Float(f), nil
}
