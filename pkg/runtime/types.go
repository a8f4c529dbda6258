// Package runtime flattens a workflow into addressable steps and drives them
// with a Cursor that advances, rewinds and replays recorded outcomes.
package runtime

import (
	"time"

	"github.com/ormasoftchile/autopilot/pkg/providers"
)

// FlatStep addresses one iteration of one action.
type FlatStep struct {
	Stage     int `json:"stage"`
	Action    int `json:"action"`
	Iteration int `json:"iteration"`
	// Times is the total iteration count of the action.
	Times int `json:"times"`
}

// State is the coarse position of a Cursor.
type State string

const (
	StateStart   State = "start"
	StateRunning State = "running"
	StateEnd     State = "end"
)

// EventKind labels a cursor transition.
type EventKind string

const (
	// Advanced: the dispatcher ran for a step never executed before.
	Advanced EventKind = "advanced"
	// Replayed: the cursor moved forward onto a recorded outcome.
	Replayed EventKind = "replayed"
	// Rewound: the cursor moved back over one step.
	Rewound EventKind = "rewound"
	// Start: rewind requested at the start; nothing moved.
	Start EventKind = "start"
	// End: advance requested at the end; nothing moved.
	End EventKind = "end"
)

// Event reports one transition. For Advanced and Replayed, Step is the step
// just traversed. For Rewound it is the step stepped back over, whose outcome
// will be replayed by the next Advance. Step and Outcome are unset for Start
// and End.
type Event struct {
	Kind      EventKind          `json:"kind"`
	Position  int                `json:"position"`
	Step      *FlatStep          `json:"step,omitempty"`
	StageName string             `json:"stage_name,omitempty"`
	Outcome   *providers.Outcome `json:"outcome,omitempty"`
}

// Moved reports whether the cursor changed position.
func (e Event) Moved() bool {
	return e.Kind != Start && e.Kind != End
}

// Record pairs a traversed step with its outcome.
type Record struct {
	Step    FlatStep           `json:"step"`
	Outcome *providers.Outcome `json:"outcome"`
}

// TraceEvent wraps an Event for JSONL trace output with extra metadata.
type TraceEvent struct {
	Type      string    `json:"type"` // cursor_event
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Event     Event     `json:"event"`
}

// RunSummary records the metadata of one run.
// Written as summary.yaml when the run ends.
type RunSummary struct {
	RunID     string       `yaml:"run_id"     json:"run_id"`
	Workflow  string       `yaml:"workflow"   json:"workflow"`
	StartedAt string       `yaml:"started_at" json:"started_at"`
	EndedAt   string       `yaml:"ended_at"   json:"ended_at"`
	Steps     StepsSummary `yaml:"steps"      json:"steps"`
}

// StepsSummary counts recorded outcomes by kind.
type StepsSummary struct {
	Total     int `yaml:"total"     json:"total"`
	Reached   int `yaml:"reached"   json:"reached"`
	Displayed int `yaml:"displayed" json:"displayed"`
	Ran       int `yaml:"ran"       json:"ran"`
	Failed    int `yaml:"failed"    json:"failed"`
}
