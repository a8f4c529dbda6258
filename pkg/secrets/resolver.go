// Package secrets resolves environment indirections at the moment of use.
package secrets

import (
	"fmt"
	"os"
	"regexp"

	"github.com/ormasoftchile/autopilot/pkg/schema"
)

// ResolutionError reports a referenced environment variable that is not set.
type ResolutionError struct {
	Var string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("environment variable %s is not set", e.Var)
}

// envToken matches a $env:NAME reference embedded in command text.
var envToken = regexp.MustCompile(regexp.QuoteMeta(schema.EnvPrefix) + `([A-Za-z_][A-Za-z0-9_]*)`)

// Resolver looks up indirect values. Results are never cached: every call
// reads the environment again.
type Resolver struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(name string) (string, bool)
}

// NewResolver returns a Resolver reading the process environment.
func NewResolver() *Resolver {
	return &Resolver{Lookup: os.LookupEnv}
}

// Resolve returns the literal value, or the current value of the referenced
// variable. An unset variable yields *ResolutionError; a set but empty
// variable resolves to "".
func (r *Resolver) Resolve(v schema.IndirectString) (string, error) {
	if lit, ok := v.LiteralValue(); ok {
		return lit, nil
	}
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	val, ok := lookup(v.EnvVar())
	if !ok {
		return "", &ResolutionError{Var: v.EnvVar()}
	}
	return val, nil
}

// Expand replaces every $env:NAME token in text with the current value of
// NAME and returns the substituted values so callers can mask them. The
// first unset variable yields *ResolutionError.
func (r *Resolver) Expand(text string) (string, []string, error) {
	var (
		values []string
		first  error
	)
	out := envToken.ReplaceAllStringFunc(text, func(tok string) string {
		if first != nil {
			return tok
		}
		val, err := r.Resolve(schema.EnvRef(tok[len(schema.EnvPrefix):]))
		if err != nil {
			first = err
			return tok
		}
		values = append(values, val)
		return val
	})
	if first != nil {
		return "", nil, first
	}
	return out, values, nil
}
