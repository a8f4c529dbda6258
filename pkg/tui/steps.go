package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
	"github.com/ormasoftchile/autopilot/pkg/schema"
)

// stepStatus tracks the display state of each action.
type stepStatus int

const (
	statusPending stepStatus = iota
	statusCurrent
	statusPassed
	statusFailed
	statusDisplayed
)

// stepInfo is one row of the step list: a stage header or an action.
type stepInfo struct {
	Stage   int
	Action  int // -1 for a stage header
	Title   string
	Status  stepStatus
	Done    int // traversed iterations
	Times   int
	Current bool
}

// stepsPanel renders the scrollable action list.
type stepsPanel struct {
	steps  []stepInfo
	width  int
	height int
	offset int // scroll offset
}

func newStepsPanel(wf *schema.Workflow) stepsPanel {
	var rows []stepInfo
	for si, stage := range wf.Stages {
		rows = append(rows, stepInfo{Stage: si, Action: -1, Title: stage.Name})
		for ai, action := range stage.Actions {
			rows = append(rows, stepInfo{
				Stage:  si,
				Action: ai,
				Title:  action.Label(),
				Times:  action.Times(),
			})
		}
	}
	return stepsPanel{steps: rows}
}

// Sync recomputes every row from the traversed history.
func (p *stepsPanel) Sync(history []runtime.Record) {
	type key struct{ stage, action int }
	done := make(map[key]int)
	failed := make(map[key]bool)
	displayed := make(map[key]bool)
	for _, rec := range history {
		k := key{rec.Step.Stage, rec.Step.Action}
		done[k]++
		if rec.Outcome.IsFailed() {
			failed[k] = true
		}
		if rec.Outcome != nil && rec.Outcome.Kind == providers.Displayed {
			displayed[k] = true
		}
	}
	var current key
	hasCurrent := len(history) > 0
	if hasCurrent {
		last := history[len(history)-1].Step
		current = key{last.Stage, last.Action}
	}

	currentRow := -1
	for i := range p.steps {
		row := &p.steps[i]
		if row.Action < 0 {
			continue
		}
		k := key{row.Stage, row.Action}
		row.Done = done[k]
		row.Current = hasCurrent && k == current
		switch {
		case row.Done == 0:
			row.Status = statusPending
		case failed[k]:
			row.Status = statusFailed
		case displayed[k]:
			row.Status = statusDisplayed
		default:
			row.Status = statusPassed
		}
		if row.Current {
			currentRow = i
		}
	}
	if currentRow >= 0 {
		p.ensureVisible(currentRow)
	}
}

func (p *stepsPanel) ensureVisible(row int) {
	visible := p.height - 3 // account for border/title
	if visible < 1 {
		visible = 1
	}
	if row < p.offset {
		p.offset = row
	}
	if row >= p.offset+visible {
		p.offset = row - visible + 1
	}
}

// View renders the step list panel.
func (p *stepsPanel) View() string {
	if len(p.steps) == 0 {
		return panelBorder.Width(p.width).Height(p.height).Render("  No actions")
	}

	visible := p.height - 3
	if visible < 1 {
		visible = 1
	}
	end := p.offset + visible
	if end > len(p.steps) {
		end = len(p.steps)
	}

	maxTitle := p.width - 10
	if maxTitle < 4 {
		maxTitle = 4
	}

	var lines []string
	for i := p.offset; i < end; i++ {
		step := p.steps[i]
		if step.Action < 0 {
			lines = append(lines, stepStage.Render(runewidth.Truncate(" "+step.Title, maxTitle+4, "…")))
			continue
		}

		var glyph string
		var style lipgloss.Style
		switch step.Status {
		case statusPending:
			glyph, style = GlyphPending, stepNormal
		case statusPassed:
			glyph, style = GlyphPassed, stepPassed
		case statusFailed:
			glyph, style = GlyphFailed, stepFailed
		case statusDisplayed:
			glyph, style = GlyphDisplayed, stepNormal
		}
		if step.Current {
			glyph, style = GlyphCurrent, stepCurrent
		}

		title := runewidth.Truncate(step.Title, maxTitle, "…")
		line := fmt.Sprintf("  %s %s", glyph, title)
		if step.Times > 1 {
			line += fmt.Sprintf(" %s%d/%d", GlyphLooping, step.Done, step.Times)
		}
		lines = append(lines, style.Render(line))
	}

	for len(lines) < visible {
		lines = append(lines, "")
	}

	title := panelTitle.Render("Actions")
	return panelBorder.Width(p.width).Height(p.height).Render(
		title + "\n" + strings.Join(lines, "\n"),
	)
}

// Stats returns counts of actions by status.
func (p *stepsPanel) Stats() (total, passed, failed int) {
	for _, s := range p.steps {
		if s.Action < 0 {
			continue
		}
		total++
		switch s.Status {
		case statusPassed, statusDisplayed:
			passed++
		case statusFailed:
			failed++
		}
	}
	return
}
