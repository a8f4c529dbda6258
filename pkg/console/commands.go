package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
)

// handleNext runs the next step. A looped command keeps running its
// remaining iterations unless one is interrupted.
func (c *Console) handleNext(ctx context.Context) {
	if c.cursor.AtEnd() {
		fmt.Fprintf(c.output, "All steps completed.\n")
		return
	}
	for {
		ev := c.step(ctx, c.cursor.Advance)
		if !continuesLoop(ev) {
			return
		}
	}
}

// handleContinue runs every remaining step. Failures do not halt the run; an
// interruption does.
func (c *Console) handleContinue(ctx context.Context) {
	for !c.cursor.AtEnd() {
		ev := c.step(ctx, c.cursor.Advance)
		if ev.Outcome != nil && ev.Outcome.ErrorKind == providers.Interrupted {
			fmt.Fprintf(c.output, "Halted on interrupt.\n")
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
	fmt.Fprintf(c.output, "All steps completed.\n")
}

// handleBack steps back over one step. Its outcome is kept for replay.
func (c *Console) handleBack() {
	ev := c.cursor.Rewind()
	if ev.Kind == runtime.Start {
		fmt.Fprintf(c.output, "Already at the first step.\n")
		return
	}
	fmt.Fprintf(c.output, "  ← back to %d/%d: %s\n", ev.Position+1, c.cursor.Len(), c.cursor.Action(*ev.Step).Label())
	c.lastStage = -1
	if step, _, ok := c.cursor.Current(); ok {
		c.lastStage = step.Stage
	}
}

// handleRerun executes the current step again.
func (c *Console) handleRerun(ctx context.Context) {
	if c.cursor.AtStart() {
		fmt.Fprintf(c.output, "Nothing to rerun yet.\n")
		return
	}
	c.step(ctx, c.cursor.Rerun)
}

func (c *Console) step(ctx context.Context, move func(context.Context) runtime.Event) runtime.Event {
	stepCtx, cancel := c.stepContext(ctx)
	defer cancel()
	ev := move(stepCtx)
	c.printEvent(ev)
	return ev
}

// printEvent writes the step that was traversed, opening a new stage with
// its banner.
func (c *Console) printEvent(ev runtime.Event) {
	if ev.Step == nil || ev.Outcome == nil {
		return
	}
	if ev.Step.Stage != c.lastStage {
		fmt.Fprintf(c.output, "\n### %s ###\n\n", ev.StageName)
		c.lastStage = ev.Step.Stage
	}
	if ev.Kind == runtime.Replayed {
		fmt.Fprintf(c.output, "(replayed)\n")
	}
	fmt.Fprintln(c.output, formatOutcome(ev.Outcome, ev.Step))
}

// formatOutcome renders an outcome as the operator sees it in a terminal.
func formatOutcome(o *providers.Outcome, step *runtime.FlatStep) string {
	if o.Kind == providers.Displayed {
		return o.Text
	}
	var b strings.Builder
	if o.Prompt != "" {
		b.WriteString(o.Prompt + " ")
	}
	b.WriteString(o.Command)
	if step != nil && step.Times > 1 {
		fmt.Fprintf(&b, "  (%d/%d)", step.Iteration+1, step.Times)
	}
	if out := strings.TrimRight(o.VisibleStdout(), "\n"); out != "" {
		b.WriteString("\n" + out)
	}
	if errOut := strings.TrimRight(o.VisibleStderr(), "\n"); errOut != "" {
		b.WriteString("\n" + errOut)
	}
	if o.IsFailed() {
		b.WriteString("\n  ✗ " + o.Summary())
	}
	return b.String()
}

// continuesLoop reports whether ev left the cursor in the middle of a loop.
func continuesLoop(ev runtime.Event) bool {
	if ev.Kind != runtime.Advanced && ev.Kind != runtime.Replayed {
		return false
	}
	if ev.Step == nil || ev.Step.Iteration+1 >= ev.Step.Times {
		return false
	}
	return ev.Outcome == nil || ev.Outcome.ErrorKind != providers.Interrupted
}

// handleStatus shows the position, the current outcome and the next step.
func (c *Console) handleStatus() {
	fmt.Fprintf(c.output, "  Run:      %s\n", c.cursor.RunID())
	fmt.Fprintf(c.output, "  Position: %d/%d\n", c.cursor.Position(), c.cursor.Len())
	if step, out, ok := c.cursor.Current(); ok {
		fmt.Fprintf(c.output, "  Stage:    %s\n", c.cursor.StageName(step))
		if out != nil {
			fmt.Fprintf(c.output, "  Current:  %s\n", out.Summary())
		}
	}
	if step, recorded, ok := c.cursor.Next(); ok {
		label := c.cursor.Action(step).Label()
		if recorded {
			label += " (recorded)"
		}
		fmt.Fprintf(c.output, "  Next:     %s\n", label)
	}
	fmt.Fprintf(c.output, "  Failures: %d\n", c.cursor.Failures())
}

// handleHistory shows traversed steps with their outcomes.
func (c *Console) handleHistory() {
	history := c.cursor.History()
	if len(history) == 0 {
		fmt.Fprintf(c.output, "No steps executed yet.\n")
		return
	}
	for i, r := range history {
		status := "✓"
		if r.Outcome.IsFailed() {
			status = "✗"
		}
		summary := "pending"
		if r.Outcome != nil {
			summary = r.Outcome.Summary()
		}
		fmt.Fprintf(c.output, "  %s [%d] %s: %s\n", status, i+1, c.cursor.Action(r.Step).Label(), summary)
	}
}

// handleHelp displays available commands.
func (c *Console) handleHelp() {
	fmt.Fprintln(c.output, "Available commands:")
	fmt.Fprintln(c.output, "  next (n, Enter)  Run the next step; a loop runs all its iterations")
	fmt.Fprintln(c.output, "  back (b)         Step back; the next advance replays the outcome")
	fmt.Fprintln(c.output, "  rerun (r)        Run the current step again")
	fmt.Fprintln(c.output, "  continue (c)     Run every remaining step")
	fmt.Fprintln(c.output, "  status (s)       Show position and the next step")
	fmt.Fprintln(c.output, "  history (h)      Show traversed steps")
	fmt.Fprintln(c.output, "  help (?)         Show this help")
	fmt.Fprintln(c.output, "  quit (q)         Exit")
	fmt.Fprintln(c.output, "Ctrl-C while a step runs interrupts it.")
}
