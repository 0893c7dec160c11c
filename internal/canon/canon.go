package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canon produces the deterministic byte encoding of v (spec §4.1).
//
// v may be a canon.Value, or any plain Go value accepted by FromAny.
// Byte sequences pass through unchanged; strings are NFC-normalized with
// newlines folded to LF then UTF-8 encoded; everything else is encoded
// as compact JSON with sorted object keys, 17-significant-digit floats,
// and the __bytes__ envelope for nested byte sequences.
func Canon(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case Bytes:
		return []byte(val), nil
	case string:
		return []byte(canonString(val)), nil
	case String:
		return []byte(canonString(string(val))), nil
	}

	cv, err := FromAny(v)
	if err != nil {
		return nil, fmt.Errorf("canon: %w", err)
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, cv); err != nil {
		return nil, fmt.Errorf("canon: %w", err)
	}
	return buf.Bytes(), nil
}

// SHA256Hex returns the hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Preview renders a human-readable preview of data: the full SHA-256
// digest followed by the hex encoding of its first k bytes.
func Preview(data []byte, k int) string {
	if k > len(data) {
		k = len(data)
	}
	return fmt.Sprintf("sha256:%s:%s", SHA256Hex(data), hex.EncodeToString(data[:k]))
}

// canonString applies NFC normalization and CRLF/CR-to-LF folding.
func canonString(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return norm.NFC.String(s)
}

func bytesEnvelope(b []byte) map[string]any {
	return map[string]any{
		"__bytes__": true,
		"sha256":    SHA256Hex(b),
		"length":    len(b),
	}
}

// encodeValue writes the canonical JSON encoding of cv to buf.
func encodeValue(buf *bytes.Buffer, cv Value) error {
	switch val := cv.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case Null:
		buf.WriteString("null")
		return nil
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case Float:
		return encodeFloat(buf, float64(val))
	case String:
		return encodeString(buf, string(val))
	case Bytes:
		return encodeValue(buf, envelopeValue(val))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case Object:
		buf.WriteByte('{')
		keys := val.SortedKeys()
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		// Total deterministic fallback for anything outside the domain
		// (spec §4.1 rule g).
		return encodeString(buf, fmt.Sprintf("%v", val))
	}
}

// envelopeValue builds the __bytes__ object for a nested byte sequence.
func envelopeValue(b Bytes) Object {
	return Object{
		"__bytes__": Bool(true),
		"sha256":    String(SHA256Hex(b)),
		"length":    Int(len(b)),
	}
}

// encodeFloat formats a float per spec §4.1 rule d: 17 significant
// digits, -0.0 folded to 0.0, NaN/+Inf/-Inf as quoted sentinel strings.
func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) {
		return encodeString(buf, "NaN")
	}
	if math.IsInf(f, 1) {
		return encodeString(buf, "Infinity")
	}
	if math.IsInf(f, -1) {
		return encodeString(buf, "-Infinity")
	}
	if f == 0 {
		f = 0 // folds -0.0 to 0.0
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', 17, 64))
	return nil
}

// encodeString writes s as a JSON string literal: NFC-normalized,
// newline-folded, without HTML escaping.
func encodeString(buf *bytes.Buffer, s string) error {
	normalized := canonString(s)

	var enc bytes.Buffer
	jsonEnc := json.NewEncoder(&enc)
	jsonEnc.SetEscapeHTML(false)
	if err := jsonEnc.Encode(normalized); err != nil {
		return err
	}
	out := enc.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
	return nil
}
