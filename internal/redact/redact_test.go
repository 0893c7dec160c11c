package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyNestedToolCall(t *testing.T) {
	payload := map[string]any{
		"args": map[string]any{
			"url":     "https://x",
			"api_key": "sk-1",
		},
		"result": map[string]any{
			"status":  200,
			"session": "s1",
		},
	}

	original := deepCopy(payload)

	redacted, err := DefaultPolicy().Redact("tool_call", payload)
	require.NoError(t, err)

	args := redacted["args"].(map[string]any)
	assert.Equal(t, "https://x", args["url"])
	assert.Equal(t, Redacted, args["api_key"])

	result := redacted["result"].(map[string]any)
	assert.Equal(t, 200, result["status"])
	assert.Equal(t, Redacted, result["session"])

	// I2: input structurally unchanged
	assert.Equal(t, original, payload)
}

func TestRedactionImmutability(t *testing.T) {
	payload := map[string]any{"token": "abc", "nested": map[string]any{"password": "p"}}
	before := deepCopy(payload)

	_, err := DefaultPolicy().Redact("output", payload)
	require.NoError(t, err)

	assert.Equal(t, before, payload)
}

func TestRedactionDeterministic(t *testing.T) {
	payload := map[string]any{"secret": "v", "ok": "fine"}
	policy := DefaultPolicy()

	first, err := policy.Redact("output", payload)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		next, err := policy.Redact("output", payload)
		require.NoError(t, err)
		assert.Equal(t, first, next)
	}
}

func TestFirstRuleWins(t *testing.T) {
	maskRule := NewKeyRule(Mask, "token")
	dropRule := NewKeyRule(Drop, "token")

	maskFirst := NewPolicy(maskRule, dropRule)
	redacted, err := maskFirst.Redact("output", map[string]any{"token": "abc"})
	require.NoError(t, err)
	assert.Equal(t, Redacted, redacted["token"])

	dropFirst := NewPolicy(dropRule, maskRule)
	redacted, err = dropFirst.Redact("output", map[string]any{"token": "abc"})
	require.NoError(t, err)
	_, present := redacted["token"]
	assert.False(t, present)
}

func TestDropOmitsKey(t *testing.T) {
	policy := NewPolicy(NewKeyRule(Drop, "internal"))
	redacted, err := policy.Redact("output", map[string]any{"internal_id": "x", "name": "y"})
	require.NoError(t, err)

	_, present := redacted["internal_id"]
	assert.False(t, present)
	assert.Equal(t, "y", redacted["name"])
}

func TestHashActionIsDeterministic(t *testing.T) {
	policy := NewPolicy(NewKeyRule(Hash, "ssn"))
	payload := map[string]any{"ssn": "123-45-6789"}

	first, err := policy.Redact("output", payload)
	require.NoError(t, err)
	second, err := policy.Redact("output", payload)
	require.NoError(t, err)

	assert.Equal(t, first["ssn"], second["ssn"])
	hashed, ok := first["ssn"].(string)
	require.True(t, ok)
	assert.Contains(t, hashed, "hash:")
}

func TestPathPatternMatch(t *testing.T) {
	policy := NewPolicy(NewPathRule(Mask, "headers.x-internal"))
	payload := map[string]any{
		"headers": map[string]any{"x-internal": "secret-value", "content-type": "json"},
	}
	redacted, err := policy.Redact("output", payload)
	require.NoError(t, err)

	headers := redacted["headers"].(map[string]any)
	assert.Equal(t, Redacted, headers["x-internal"])
	assert.Equal(t, "json", headers["content-type"])
}

func TestKeyAndPathBothRequired(t *testing.T) {
	policy := NewPolicy(NewKeyAndPathRule(Mask, "id", "user"))

	redacted, err := policy.Redact("output", map[string]any{
		"user":  map[string]any{"id": "123"},
		"order": map[string]any{"id": "456"},
	})
	require.NoError(t, err)

	user := redacted["user"].(map[string]any)
	assert.Equal(t, Redacted, user["id"])

	order := redacted["order"].(map[string]any)
	assert.Equal(t, "456", order["id"])
}

func TestNewRuleRejectsEmptyPattern(t *testing.T) {
	_, err := NewRule(Mask)
	require.Error(t, err)
}

func TestArraysPreserveIndex(t *testing.T) {
	policy := DefaultPolicy()
	payload := map[string]any{
		"items": []any{
			map[string]any{"token": "a"},
			map[string]any{"token": "b"},
		},
	}
	redacted, err := policy.Redact("output", payload)
	require.NoError(t, err)

	tokens := redacted["items"].([]any)
	require.Len(t, tokens, 2)
	assert.Equal(t, Redacted, tokens[0].(map[string]any)["token"])
	assert.Equal(t, Redacted, tokens[1].(map[string]any)["token"])
}

func TestParsePolicyYAML(t *testing.T) {
	doc := []byte(`
rules:
  - action: mask
    key_pattern: token
  - action: drop
    path_pattern: internal
`)
	policy, err := ParsePolicyYAML(doc)
	require.NoError(t, err)
	require.Len(t, policy.Rules, 2)

	redacted, err := policy.Redact("output", map[string]any{
		"token":    "abc",
		"internal": map[string]any{"debug": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, Redacted, redacted["token"])
	_, present := redacted["internal"]
	assert.False(t, present)
}

func TestParsePolicyYAMLRejectsUnknownAction(t *testing.T) {
	_, err := ParsePolicyYAML([]byte("rules:\n  - action: nuke\n    key_pattern: x\n"))
	require.Error(t, err)
}
