package redact

// defaultKeyPatterns is the committed SAFE-mode key pattern list (spec
// §4.3). Implementers must ship it verbatim for interoperability of
// recordings across implementations; do not add or remove entries here
// without updating the spec.
var defaultKeyPatterns = []string{
	"key",
	"token",
	"secret",
	"password",
	"api_key",
	"apikey",
	"auth",
	"authorization",
	"cookie",
	"set-cookie",
	"credentials",
	"private_key",
	"privatekey",
	"access_token",
	"refresh_token",
	"session",
	"csrf",
}

// DefaultPolicy returns the default SAFE-mode redaction policy: mask on
// any key whose name contains one of the committed secret-like
// substrings (spec §4.3).
func DefaultPolicy() Policy {
	rules := make([]Rule, 0, len(defaultKeyPatterns))
	for _, pattern := range defaultKeyPatterns {
		rules = append(rules, NewKeyRule(Mask, pattern))
	}
	return NewPolicy(rules...)
}
