package runtime

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/autopilot/pkg/schema"
)

// Flatten expands a workflow into its step sequence. A looped action
// contributes Times consecutive steps.
func Flatten(wf *schema.Workflow) []FlatStep {
	var steps []FlatStep
	for si, stage := range wf.Stages {
		for ai, action := range stage.Actions {
			times := action.Times()
			for it := 0; it < times; it++ {
				steps = append(steps, FlatStep{Stage: si, Action: ai, Iteration: it, Times: times})
			}
		}
	}
	return steps
}

// GenerateRunID creates a run ID in the format YYYYMMDDTHHMMSS-xxxxxxxx.
func GenerateRunID() string {
	ts := time.Now().Format("20060102T150405")
	return fmt.Sprintf("%s-%s", ts, uuid.NewString()[:8])
}
