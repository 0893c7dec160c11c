package redact

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlRule is the on-disk shape of a redaction rule, loaded with
// gopkg.in/yaml.v3 following the config-file idiom used by Chartly2.0's
// service configs in the retrieval pack.
type yamlRule struct {
	Action      string `yaml:"action"`
	KeyPattern  string `yaml:"key_pattern,omitempty"`
	PathPattern string `yaml:"path_pattern,omitempty"`
}

// yamlPolicy is the on-disk shape of a redaction policy file:
//
//	rules:
//	  - action: mask
//	    key_pattern: token
//	  - action: drop
//	    path_pattern: headers.x-internal
type yamlPolicy struct {
	Rules []yamlRule `yaml:"rules"`
}

// LoadPolicyYAML parses a redaction policy from a YAML file. This is an
// alternate construction path alongside NewPolicy/DefaultPolicy; it does
// not change the redaction engine's contract (I2/I3 hold identically for
// policies built either way).
func LoadPolicyYAML(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("redact: load policy %s: %w", path, err)
	}
	return ParsePolicyYAML(data)
}

// ParsePolicyYAML parses policy YAML already read into memory.
func ParsePolicyYAML(data []byte) (Policy, error) {
	var doc yamlPolicy
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Policy{}, fmt.Errorf("redact: parse policy: %w", err)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for i, yr := range doc.Rules {
		action := Action(yr.Action)
		switch action {
		case Mask, Hash, Drop:
		default:
			return Policy{}, fmt.Errorf("redact: rule %d: unknown action %q", i, yr.Action)
		}

		var opts []RuleOption
		if yr.KeyPattern != "" {
			opts = append(opts, WithKeyPattern(yr.KeyPattern))
		}
		if yr.PathPattern != "" {
			opts = append(opts, WithPathPattern(yr.PathPattern))
		}
		rule, err := NewRule(action, opts...)
		if err != nil {
			return Policy{}, fmt.Errorf("redact: rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}

	return NewPolicy(rules...), nil
}
