package schema

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// EnvPrefix marks a value as a reference to an environment variable.
const EnvPrefix = "$env:"

// IndirectString is either a literal value or the name of an environment
// variable that holds the value. It is resolved at the point of use by
// pkg/secrets and never stores a resolved secret.
type IndirectString struct {
	literal string
	envVar  string
}

// Literal builds an IndirectString holding a literal value.
func Literal(v string) IndirectString {
	return IndirectString{literal: v}
}

// EnvRef builds an IndirectString referencing an environment variable.
func EnvRef(name string) IndirectString {
	return IndirectString{envVar: name}
}

// ParseIndirect interprets a raw document value.
func ParseIndirect(raw string) IndirectString {
	// A bare prefix stays literal so validation can report it.
	if name, ok := strings.CutPrefix(raw, EnvPrefix); ok && name != "" {
		return EnvRef(name)
	}
	return Literal(raw)
}

// IsZero reports whether the value was omitted.
func (s IndirectString) IsZero() bool {
	return s.literal == "" && s.envVar == ""
}

// IsIndirect reports whether the value must be looked up in the environment.
func (s IndirectString) IsIndirect() bool {
	return s.envVar != ""
}

// EnvVar returns the referenced variable name, or "" for literals.
func (s IndirectString) EnvVar() string {
	return s.envVar
}

// LiteralValue returns the literal value and whether the value is a literal.
func (s IndirectString) LiteralValue() (string, bool) {
	if s.envVar != "" {
		return "", false
	}
	return s.literal, true
}

// String renders the document form. It never contains a resolved secret.
func (s IndirectString) String() string {
	if s.envVar != "" {
		return EnvPrefix + s.envVar
	}
	return s.literal
}

// UnmarshalYAML decodes a scalar into an IndirectString.
func (s *IndirectString) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*s = ParseIndirect(raw)
	return nil
}

// MarshalYAML renders the document form.
func (s IndirectString) MarshalYAML() (any, error) {
	return s.String(), nil
}

// MarshalJSON renders the document form, so schema validation sees the same
// shape as the YAML source.
func (s IndirectString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the document form.
func (s *IndirectString) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseIndirect(raw)
	return nil
}

// JSONSchema describes an IndirectString as a plain string.
func (IndirectString) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Literal value, or " + EnvPrefix + "NAME to read the environment variable NAME at the point of use",
	}
}

// JSONSchema describes Commands as a string or a non-empty list of strings.
func (Commands) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", MinLength: ptr(uint64(1))},
			{Type: "array", MinItems: ptr(uint64(1)), Items: &jsonschema.Schema{Type: "string", MinLength: ptr(uint64(1))}},
		},
	}
}

func ptr[T any](v T) *T { return &v }
