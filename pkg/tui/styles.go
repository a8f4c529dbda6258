// Package tui implements the terminal presentation of a workflow run. It
// drives a runtime.Cursor from operator keys and renders one stage at a time.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/autopilot/pkg/schema"
)

// Step status glyphs convey meaning without relying on color alone.
const (
	GlyphPending   = "○"
	GlyphCurrent   = "▸"
	GlyphPassed    = "✓"
	GlyphFailed    = "✗"
	GlyphDisplayed = "•"
	GlyphLooping   = "⟳"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen   = lipgloss.Color("42")
	colorRed     = lipgloss.Color("196")
	colorYellow  = lipgloss.Color("214")
	colorBlue    = lipgloss.Color("39")
	colorCyan    = lipgloss.Color("51")
	colorDim     = lipgloss.Color("240")
	colorWhite   = lipgloss.Color("255")
	colorMagenta = lipgloss.Color("201")
)

// actionColors maps document color names onto the palette.
var actionColors = map[string]lipgloss.Color{
	"green":   colorGreen,
	"yellow":  colorYellow,
	"blue":    colorBlue,
	"cyan":    colorCyan,
	"red":     colorRed,
	"magenta": colorMagenta,
	"white":   colorWhite,
}

// actionStyle builds the lipgloss style for a document style block.
func actionStyle(s *schema.Style) lipgloss.Style {
	st := lipgloss.NewStyle()
	if s == nil {
		return st
	}
	if c, ok := actionColors[s.Color]; ok {
		st = st.Foreground(c)
	}
	return st.Bold(s.Bold).Italic(s.Italic)
}

// --- Header styles ---

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var stageBannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorMagenta)

// --- Step list styles ---

var (
	stepNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	stepCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepPassed = lipgloss.NewStyle().
			Foreground(colorGreen)

	stepFailed = lipgloss.NewStyle().
			Foreground(colorRed)

	stepStage = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)
)

// --- Panel styles ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	commandStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	stderrStyle = lipgloss.NewStyle().
			Foreground(colorRed)
)

// --- Detail bar styles ---

var (
	detailBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorBlue)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(colorWhite)

	statusPassedStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(colorYellow)
)

// --- Key bar styles ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// --- Help overlay ---

var overlayBorder = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorCyan).
	Padding(1, 2)

// --- Error style ---

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

// --- Spinner style ---

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)
