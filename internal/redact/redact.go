// Package redact implements Forkline's redaction engine (spec §4.3): a
// deterministic, rule-driven compiler pass applied to event payloads at
// the storage boundary.
//
// Grounded on original_source/forkline/core/redaction.py; the rule
// shape, first-match-wins semantics, and the three actions (mask, hash,
// drop) are ported exactly. Error and construction style follows
// github.com/roach88/nysm's internal/engine/errors.go (typed errors,
// constructor functions that validate at build time).
package redact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sauravvenkat/forkline/internal/canon"
)

// Action is the closed enumeration of redaction actions.
type Action string

const (
	// Mask replaces the matched value with the literal "[REDACTED]".
	Mask Action = "mask"
	// Hash replaces the matched value with "hash:" + a deterministic
	// SHA-256 digest of the value's canonical representation.
	Hash Action = "hash"
	// Drop omits the matched key entirely from the produced mapping.
	Drop Action = "drop"
)

// Redacted is the sentinel string substituted by Mask.
const Redacted = "[REDACTED]"

// Rule is a single redaction rule. At least one of KeyPattern or
// PathPattern must be set, or NewRule rejects it at construction.
type Rule struct {
	Action      Action
	KeyPattern  string
	PathPattern string
	hasKey      bool
	hasPath     bool
}

// RuleOption configures an optional pattern on a Rule built via NewRule.
type RuleOption func(*Rule)

// WithKeyPattern constrains the rule to keys whose name contains pattern
// (case-insensitive).
func WithKeyPattern(pattern string) RuleOption {
	return func(r *Rule) {
		r.KeyPattern = pattern
		r.hasKey = true
	}
}

// WithPathPattern constrains the rule to nodes whose dot-path contains
// pattern (case-insensitive).
func WithPathPattern(pattern string) RuleOption {
	return func(r *Rule) {
		r.PathPattern = pattern
		r.hasPath = true
	}
}

// NewRule constructs a Rule from one or more pattern options, validating
// that at least one pattern is present (a rule with neither is
// rejected).
func NewRule(action Action, opts ...RuleOption) (Rule, error) {
	r := Rule{Action: action}
	for _, opt := range opts {
		opt(&r)
	}
	if !r.hasKey && !r.hasPath {
		return Rule{}, fmt.Errorf("redact: rule requires at least one pattern")
	}
	return r, nil
}

// NewKeyRule builds a rule matching on key name alone.
func NewKeyRule(action Action, keyPattern string) Rule {
	return Rule{Action: action, KeyPattern: keyPattern, hasKey: true}
}

// NewPathRule builds a rule matching on dot-path alone.
func NewPathRule(action Action, pathPattern string) Rule {
	return Rule{Action: action, PathPattern: pathPattern, hasPath: true}
}

// NewKeyAndPathRule builds a rule that requires both the key and the
// path to match.
func NewKeyAndPathRule(action Action, keyPattern, pathPattern string) Rule {
	return Rule{Action: action, KeyPattern: keyPattern, PathPattern: pathPattern, hasKey: true, hasPath: true}
}

// matches reports whether the rule fires for a node reached at dot-path
// path under key. Both patterns, when present, are case-insensitive
// substring matches; both present patterns must match (spec §4.3).
func (r Rule) matches(key, path string) bool {
	keyOK := !r.hasKey || strings.Contains(strings.ToLower(key), strings.ToLower(r.KeyPattern))
	pathOK := !r.hasPath || strings.Contains(strings.ToLower(path), strings.ToLower(r.PathPattern))
	return keyOK && pathOK
}

// Policy is an ordered list of redaction rules. The first firing rule
// wins (invariant I3).
type Policy struct {
	Rules []Rule
}

// NewPolicy constructs a policy from an ordered rule list.
func NewPolicy(rules ...Rule) Policy {
	return Policy{Rules: rules}
}

// Redact applies the policy to payload and returns a new value; payload
// is never mutated (invariant I2). eventType is accepted for forward
// compatibility with event-type-specific rules but is not currently
// consulted by the match predicate.
func (p Policy) Redact(eventType string, payload map[string]any) (map[string]any, error) {
	redacted, err := p.redactValue(deepCopy(payload), "")
	if err != nil {
		return nil, err
	}
	out, ok := redacted.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("redact: payload must be an object, got %T", redacted)
	}
	return out, nil
}

func (p Policy) redactValue(value any, path string) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return p.redactObject(v, path)
	case []any:
		return p.redactArray(v, path)
	default:
		return value, nil
	}
}

func (p Policy) redactObject(obj map[string]any, path string) (map[string]any, error) {
	result := make(map[string]any, len(obj))

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := obj[key]
		currentPath := key
		if path != "" {
			currentPath = path + "." + key
		}

		rule, matched := p.findMatch(key, currentPath)
		if !matched {
			redactedValue, err := p.redactValue(value, currentPath)
			if err != nil {
				return nil, err
			}
			result[key] = redactedValue
			continue
		}

		switch rule.Action {
		case Drop:
			// omit the key entirely
		case Mask:
			result[key] = Redacted
		case Hash:
			hashed, err := p.hashValue(value)
			if err != nil {
				return nil, err
			}
			result[key] = hashed
		default:
			return nil, fmt.Errorf("redact: unknown action %q", rule.Action)
		}
	}

	return result, nil
}

func (p Policy) redactArray(arr []any, path string) ([]any, error) {
	result := make([]any, len(arr))
	for i, item := range arr {
		redactedItem, err := p.redactValue(item, path)
		if err != nil {
			return nil, err
		}
		result[i] = redactedItem
	}
	return result, nil
}

// findMatch returns the first rule that fires for (key, path).
func (p Policy) findMatch(key, path string) (Rule, bool) {
	for _, rule := range p.Rules {
		if rule.matches(key, path) {
			return rule, true
		}
	}
	return Rule{}, false
}

// hashValue computes "hash:" + sha256_hex(canonical bytes of value). Any
// total, deterministic stringification satisfies the contract; this
// implementation reuses the canonicalizer per spec §9's recommendation,
// so cross-implementation recordings hash identically.
func (p Policy) hashValue(value any) (string, error) {
	data, err := canon.Canon(value)
	if err != nil {
		return "", fmt.Errorf("redact: hash: %w", err)
	}
	return "hash:" + canon.SHA256Hex(data), nil
}

// deepCopy clones a JSON-like value (map[string]any/[]any/primitives) so
// Redact never aliases the caller's payload.
func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return value
	}
}
