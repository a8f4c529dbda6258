// Package providers defines the CommandExecutor interface, the local process
// executor and the per-attempt Outcome shared by the dispatcher, the cursor
// and every presentation.
package providers

import (
	"context"
	"time"

	"github.com/ormasoftchile/autopilot/pkg/schema"
)

// CommandResult holds the output of a single command execution.
type CommandResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// CommandExecutor abstracts real vs fake local command execution.
// stdin, when non-nil, is written to the process and then closed.
// Implementations: LocalExecutor, and fakes in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, command string, args []string, stdin []byte) (*CommandResult, error)
}

// OutcomeKind is the top-level result of one attempt.
type OutcomeKind string

const (
	Displayed OutcomeKind = "displayed"
	Ran       OutcomeKind = "ran"
	Failed    OutcomeKind = "failed"
)

// ErrorKind classifies a Failed outcome.
type ErrorKind string

const (
	ExitNonZero           ErrorKind = "exit_non_zero"
	ConnectionError       ErrorKind = "connection_error"
	AuthenticationError   ErrorKind = "authentication_error"
	SecretResolutionError ErrorKind = "secret_resolution_error"
	IOError               ErrorKind = "io_error"
	Interrupted           ErrorKind = "interrupted"
)

// Outcome is the immutable record of one attempt at one step. It carries
// display hints but never a resolved secret: captured streams and details
// are masked before an Outcome is built.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Message fields
	Text  string        `json:"text,omitempty"`
	Style *schema.Style `json:"style,omitempty"`
	Speed uint          `json:"speed,omitempty"`

	// Command fields
	Prompt     string `json:"prompt,omitempty"`
	Command    string `json:"command,omitempty"`
	ExitStatus *int   `json:"exit_status,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	HideStdout bool   `json:"hide_stdout,omitempty"`
	HideStderr bool   `json:"hide_stderr,omitempty"`

	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// IsFailed reports whether the outcome is a failure.
func (o *Outcome) IsFailed() bool {
	return o != nil && o.Kind == Failed
}

// VisibleStdout returns stdout unless the action asked to hide it.
func (o *Outcome) VisibleStdout() string {
	if o.HideStdout {
		return ""
	}
	return o.Stdout
}

// VisibleStderr returns stderr unless the action asked to hide it.
func (o *Outcome) VisibleStderr() string {
	if o.HideStderr {
		return ""
	}
	return o.Stderr
}

// Summary is a one-line description used by line mode, the MCP server and logs.
func (o *Outcome) Summary() string {
	switch o.Kind {
	case Displayed:
		return "displayed"
	case Ran:
		return "ran (exit 0)"
	case Failed:
		s := "failed: " + string(o.ErrorKind)
		if o.Detail != "" {
			s += ": " + o.Detail
		}
		return s
	default:
		return string(o.Kind)
	}
}
