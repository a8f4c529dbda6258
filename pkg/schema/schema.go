// Package schema defines the Go struct types for the workflow YAML document
// and provides strict YAML parsing.
package schema

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultSSHPort is used when a remote target omits its port.
const DefaultSSHPort = 22

// DefaultSudoUser is used when a sudo block omits its user.
const DefaultSudoUser = "root"

// DefaultSpeed is the per-character typing delay (ms) for messages without a speed.
const DefaultSpeed = 25

// Workflow is the top-level document: an ordered list of stages.
type Workflow struct {
	Stages []Stage `yaml:"stages" json:"stages" jsonschema:"required,minItems=1"`
}

// Stage is a named, ordered group of actions.
type Stage struct {
	Name    string   `yaml:"name"    json:"name"    jsonschema:"required,minLength=1"`
	Actions []Action `yaml:"actions" json:"actions" jsonschema:"required,minItems=1"`
}

// ActionKind discriminates the two action variants.
type ActionKind int

const (
	KindInvalid ActionKind = iota
	KindMessage
	KindCommand
)

func (k ActionKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCommand:
		return "command"
	default:
		return "invalid"
	}
}

// Action is a single unit of work. Exactly one of Text or Command is set;
// the remaining fields only apply to the variant they belong to.
type Action struct {
	// Message variant
	Text  string `yaml:"text,omitempty"  json:"text,omitempty"`
	Speed *uint  `yaml:"speed,omitempty" json:"speed,omitempty" jsonschema:"description=Typing delay per character in milliseconds"`

	// Command variant
	Command    Commands      `yaml:"command,omitempty"     json:"command,omitempty"`
	HideStdout bool          `yaml:"hide_stdout,omitempty" json:"hide_stdout,omitempty"`
	HideStderr bool          `yaml:"hide_stderr,omitempty" json:"hide_stderr,omitempty"`
	Remote     *RemoteTarget `yaml:"remote,omitempty"      json:"remote,omitempty"`
	Sudo       *SudoSpec     `yaml:"sudo,omitempty"        json:"sudo,omitempty"`
	Loop       *LoopSpec     `yaml:"loop,omitempty"        json:"loop,omitempty"`

	// Shared
	Style *Style `yaml:"style,omitempty" json:"style,omitempty"`
}

// Kind reports which variant the action is. Validation guarantees a valid
// workflow never contains KindInvalid.
func (a Action) Kind() ActionKind {
	hasText := a.Text != ""
	hasCmd := len(a.Command) > 0
	switch {
	case hasText && !hasCmd:
		return KindMessage
	case hasCmd && !hasText:
		return KindCommand
	default:
		return KindInvalid
	}
}

// Times returns the number of iterations the action expands into.
func (a Action) Times() int {
	if a.Loop == nil || a.Loop.Times == 0 {
		return 1
	}
	return int(a.Loop.Times)
}

// TypingSpeed returns the message typing delay in milliseconds.
func (a Action) TypingSpeed() uint {
	if a.Speed == nil {
		return DefaultSpeed
	}
	return *a.Speed
}

// Style controls how a message or command block is rendered.
type Style struct {
	Color  string `yaml:"color,omitempty"  json:"color,omitempty"  jsonschema:"enum=green,enum=yellow,enum=blue,enum=cyan,enum=red,enum=magenta,enum=white"`
	Bold   bool   `yaml:"bold,omitempty"   json:"bold,omitempty"`
	Italic bool   `yaml:"italic,omitempty" json:"italic,omitempty"`
}

// RemoteTarget names an SSH endpoint. Host, User and Password may be
// environment indirections.
type RemoteTarget struct {
	Host     IndirectString `yaml:"host"               json:"host"               jsonschema:"required"`
	Port     uint16         `yaml:"port,omitempty"     json:"port,omitempty"`
	User     IndirectString `yaml:"user"               json:"user"               jsonschema:"required"`
	Password IndirectString `yaml:"password,omitempty" json:"password,omitempty"`
}

// EffectivePort returns Port or the SSH default.
func (r RemoteTarget) EffectivePort() uint16 {
	if r.Port == 0 {
		return DefaultSSHPort
	}
	return r.Port
}

// SudoSpec requests privilege escalation for a command action.
type SudoSpec struct {
	User     IndirectString `yaml:"user,omitempty"     json:"user,omitempty"`
	Password IndirectString `yaml:"password,omitempty" json:"password,omitempty"`
}

// EffectiveUser returns User or the sudo default.
func (s SudoSpec) EffectiveUser() IndirectString {
	if s.User.IsZero() {
		return Literal(DefaultSudoUser)
	}
	return s.User
}

// LoopSpec repeats a command action. Delay (ms) separates iterations.
type LoopSpec struct {
	Times uint `yaml:"times"           json:"times"           jsonschema:"required,minimum=1"`
	Delay uint `yaml:"delay,omitempty" json:"delay,omitempty" jsonschema:"description=Pause between iterations in milliseconds"`
}

// Commands is the command list of a command action. The document may give a
// single string or a sequence of strings.
type Commands []string

// UnmarshalYAML accepts either a scalar or a sequence of scalars.
func (c *Commands) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*c = Commands{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = Commands(list)
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list of strings", node.Line)
	}
}

// String joins the command list the way it is shown on the prompt line.
func (c Commands) String() string {
	out := ""
	for i, s := range c {
		if i > 0 {
			out += " && "
		}
		out += s
	}
	return out
}

// LoadFile reads and parses a workflow YAML file with strict unknown-field
// rejection (yaml.v3 KnownFields). Returns the parsed Workflow or an error.
func LoadFile(path string) (*Workflow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workflow: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a workflow from an io.Reader with strict unknown-field rejection.
func Load(r io.Reader) (*Workflow, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("decode workflow: empty document")
		}
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &wf, nil
}

// Label returns a short human-readable description of an action, used by
// diagrams and line-mode output.
func (a Action) Label() string {
	switch a.Kind() {
	case KindMessage:
		return a.Text
	case KindCommand:
		label := a.Command.String()
		if a.Loop != nil && a.Loop.Times > 1 {
			label += " (x" + strconv.Itoa(int(a.Loop.Times)) + ")"
		}
		return label
	default:
		return "<invalid action>"
	}
}
