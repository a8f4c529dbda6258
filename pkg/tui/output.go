package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// outputPanel renders the scrollable transcript of the current stage.
type outputPanel struct {
	viewport viewport.Model

	title   string
	content string

	width  int
	height int
	ready  bool
}

func newOutputPanel() outputPanel {
	return outputPanel{title: "Output"}
}

// SetSize updates the viewport dimensions.
func (p *outputPanel) SetSize(width, height int) {
	p.width = width
	p.height = height

	contentW := width - 4  // border padding
	contentH := height - 3 // title + border

	if contentW < 1 {
		contentW = 1
	}
	if contentH < 1 {
		contentH = 1
	}

	if !p.ready {
		p.viewport = viewport.New(contentW, contentH)
		p.ready = true
	} else {
		p.viewport.Width = contentW
		p.viewport.Height = contentH
	}
	p.viewport.SetContent(p.content)
}

// SetContent replaces the transcript. follow keeps the view pinned to the
// bottom; otherwise the scroll position is preserved.
func (p *outputPanel) SetContent(title, content string, follow bool) {
	p.title = title
	p.content = content
	if !p.ready {
		return
	}
	p.viewport.SetContent(content)
	if follow {
		p.viewport.GotoBottom()
	}
}

// Update handles viewport-specific messages (mouse scroll, etc.).
func (p *outputPanel) Update(msg tea.Msg) {
	if p.ready {
		p.viewport, _ = p.viewport.Update(msg)
	}
}

// LineUp scrolls up one line.
func (p *outputPanel) LineUp() {
	if p.ready {
		p.viewport.SetYOffset(p.viewport.YOffset - 1)
	}
}

// LineDown scrolls down one line.
func (p *outputPanel) LineDown() {
	if p.ready {
		p.viewport.SetYOffset(p.viewport.YOffset + 1)
	}
}

// PageUp scrolls the viewport up.
func (p *outputPanel) PageUp() {
	if p.ready {
		p.viewport.HalfViewUp()
	}
}

// PageDown scrolls the viewport down.
func (p *outputPanel) PageDown() {
	if p.ready {
		p.viewport.HalfViewDown()
	}
}

// View renders the output panel.
func (p *outputPanel) View() string {
	title := panelTitle.Render(p.title)

	var content string
	if p.ready {
		content = p.viewport.View()
	} else {
		content = "  Waiting for the first step..."
	}

	// Scroll indicator
	scrollInfo := ""
	if p.ready && p.viewport.TotalLineCount() > p.viewport.VisibleLineCount() {
		pct := p.viewport.ScrollPercent() * 100
		scrollInfo = fmt.Sprintf(" %3.0f%%", pct)
	}

	header := title
	if scrollInfo != "" {
		padding := p.width - 4 - len(p.title) - len(scrollInfo)
		if padding < 0 {
			padding = 0
		}
		header = title + strings.Repeat(" ", padding) + keyDescStyle.Render(scrollInfo)
	}

	return panelBorder.Width(p.width).Height(p.height).Render(
		header + "\n" + content,
	)
}
