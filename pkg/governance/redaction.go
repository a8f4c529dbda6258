// Package governance masks secret values in captured output before it leaves
// the dispatcher.
package governance

import (
	"regexp"
	"sort"
)

// Mask replaces every redacted value.
const Mask = "********"

// MinSecretLength is the shortest value that is masked. Shorter values would
// mask unrelated text throughout the captured streams.
const MinSecretLength = 3

// Maskable reports whether s is long enough to be masked.
func Maskable(s string) bool {
	return len(s) >= MinSecretLength
}

// CompiledRedaction is a pre-compiled redaction rule.
type CompiledRedaction struct {
	Pattern *regexp.Regexp
	Replace string
}

// CompileSecretRules builds one literal-match rule per maskable secret.
// Longer secrets are applied first so a secret containing another is masked whole.
func CompileSecretRules(secrets []string) []*CompiledRedaction {
	uniq := make(map[string]struct{}, len(secrets))
	var values []string
	for _, s := range secrets {
		if !Maskable(s) {
			continue
		}
		if _, ok := uniq[s]; ok {
			continue
		}
		uniq[s] = struct{}{}
		values = append(values, s)
	}
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })

	compiled := make([]*CompiledRedaction, 0, len(values))
	for _, v := range values {
		compiled = append(compiled, &CompiledRedaction{
			Pattern: regexp.MustCompile(regexp.QuoteMeta(v)),
			Replace: Mask,
		})
	}
	return compiled
}

// RedactOutput applies all compiled redaction rules to the given output.
func RedactOutput(output string, rules []*CompiledRedaction) string {
	result := output
	for _, r := range rules {
		result = r.Pattern.ReplaceAllLiteralString(result, r.Replace)
	}
	return result
}

// RedactBytes is RedactOutput for captured streams. It returns b unchanged
// when there is nothing to mask.
func RedactBytes(b []byte, rules []*CompiledRedaction) []byte {
	if len(rules) == 0 || len(b) == 0 {
		return b
	}
	out := b
	for _, r := range rules {
		out = r.Pattern.ReplaceAllLiteral(out, []byte(r.Replace))
	}
	return out
}
