package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const helpMarkdown = `# Keys

| Key | Action |
|-----|--------|
| → / enter / space | run the next step; while typing, finish the text; while running, stop |
| ← / backspace | step back; the step is replayed, not re-run |
| r | run the current step again |
| ↑ ↓ / PgUp PgDn | scroll the stage output |
| ? / esc | toggle this help |
| q / ctrl+c | quit |

Looped commands run every remaining iteration on one press; press → to stop.
`

// renderMarkdownWidth renders markdown constrained to a specific column width.
// Falls back to the raw input if glamour is unavailable or rendering fails.
func renderMarkdownWidth(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
