package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
)

// detailBar renders the current step detail and key hints at the bottom.
type detailBar struct {
	stage     string
	position  int
	total     int
	iteration int
	times     int
	next      string
	outcome   *providers.Outcome

	width int
}

// Set updates the bar from the cursor.
func (d *detailBar) Set(c *runtime.Cursor) {
	d.total = c.Len()
	d.position = c.Position()
	d.outcome = nil
	d.stage = ""
	d.times = 0
	if step, out, ok := c.Current(); ok {
		d.stage = c.StageName(step)
		d.iteration = step.Iteration
		d.times = step.Times
		d.outcome = out
	}
	d.next = ""
	if step, _, ok := c.Next(); ok {
		d.next = c.Action(step).Label()
	}
}

// View renders the detail bar.
func (d *detailBar) View(status runStatus, spinnerView string, help bool) string {
	var parts []string
	if d.stage != "" {
		parts = append(parts, detailLabelStyle.Render("Stage: ")+detailValueStyle.Render(d.stage))
	}
	parts = append(parts, detailLabelStyle.Render("│ Step: ")+detailValueStyle.Render(fmt.Sprintf("%d/%d", d.position, d.total)))
	if d.times > 1 {
		parts = append(parts, detailLabelStyle.Render("│ Loop: ")+detailValueStyle.Render(fmt.Sprintf("%d/%d", d.iteration+1, d.times)))
	}

	switch status {
	case statusRunning:
		parts = append(parts, detailLabelStyle.Render("│ ")+statusRunningStyle.Render(spinnerView+" Running"))
	case statusStopping:
		parts = append(parts, detailLabelStyle.Render("│ ")+statusRunningStyle.Render("Stopping"))
	case statusFinished:
		parts = append(parts, detailLabelStyle.Render("│ ")+statusPassedStyle.Render("Finished"))
	default:
		parts = append(parts, detailLabelStyle.Render("│ ")+detailValueStyle.Render("Stopped"))
	}

	if d.outcome != nil {
		if d.outcome.IsFailed() {
			parts = append(parts, detailLabelStyle.Render("│ ")+statusFailedStyle.Render(GlyphFailed+" "+string(d.outcome.ErrorKind)))
		} else if d.outcome.Kind == providers.Ran {
			parts = append(parts, detailLabelStyle.Render("│ ")+statusPassedStyle.Render(GlyphPassed+" exit 0"))
		}
	}
	content := strings.Join(parts, " ")

	if d.next != "" && status != statusRunning {
		maxW := d.width - 14
		if maxW < 10 {
			maxW = 10
		}
		content += "\n" + detailLabelStyle.Render("  Next: ") + commandStyle.Render(runewidth.Truncate(d.next, maxW, "…"))
	}

	content += "\n" + keyBarStyle.Render(keyBarText(status, help))

	w := d.width - 4
	if w < 10 {
		w = 10
	}
	return detailBarStyle.Width(w).Render(content)
}
