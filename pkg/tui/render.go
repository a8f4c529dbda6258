package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
)

// typingState tracks the message currently being typed out.
type typingState struct {
	active bool
	index  int // history index of the message
	shown  int // revealed runes
	total  int
	speed  time.Duration
	gen    int
}

// typeTickMsg reveals one more rune of the typed message.
type typeTickMsg struct{ gen int }

func (t typingState) tick() tea.Cmd {
	gen := t.gen
	return tea.Tick(t.speed, func(time.Time) tea.Msg { return typeTickMsg{gen: gen} })
}

// reveal returns how many runes of history entry i to show, or -1 for all.
func (t typingState) reveal(i int) int {
	if t.active && t.index == i {
		return t.shown
	}
	return -1
}

// stageBanner renders the title line that opens every stage view.
func stageBanner(name string) string {
	return stageBannerStyle.Render("### " + name + " ###")
}

// renderRecord renders one traversed step. reveal limits the characters of a
// message that is still being typed; -1 shows everything.
func renderRecord(rec runtime.Record, reveal int) string {
	o := rec.Outcome
	if o == nil {
		return ""
	}
	if o.Kind == providers.Displayed {
		text := o.Text
		if reveal >= 0 && reveal < utf8.RuneCountInString(text) {
			text = string([]rune(text)[:reveal])
		}
		return actionStyle(o.Style).Render(text)
	}

	var b strings.Builder
	cmdStyle := commandStyle
	if o.Style != nil {
		cmdStyle = actionStyle(o.Style)
	}
	if o.Prompt != "" {
		b.WriteString(promptStyle.Render(o.Prompt) + " ")
	}
	b.WriteString(cmdStyle.Render(o.Command))
	if rec.Step.Times > 1 {
		b.WriteString(keyDescStyle.Render(fmt.Sprintf("  (%d/%d)", rec.Step.Iteration+1, rec.Step.Times)))
	}
	if out := strings.TrimRight(o.VisibleStdout(), "\n"); out != "" {
		b.WriteString("\n" + out)
	}
	if errOut := strings.TrimRight(o.VisibleStderr(), "\n"); errOut != "" {
		b.WriteString("\n" + stderrStyle.Render(errOut))
	}
	if o.IsFailed() {
		b.WriteString("\n" + errorStyle.Render(GlyphFailed+" "+o.Summary()))
	}
	return b.String()
}

// renderTranscript renders the banner and every traversed step of stage.
func renderTranscript(stageName string, stage int, history []runtime.Record, typing typingState) string {
	parts := []string{stageBanner(stageName)}
	for i, rec := range history {
		if rec.Step.Stage != stage {
			continue
		}
		parts = append(parts, renderRecord(rec, typing.reveal(i)))
	}
	return strings.Join(parts, "\n\n")
}
