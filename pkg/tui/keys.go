package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all TUI key bindings.
type keyMap struct {
	Advance key.Binding
	Rewind  key.Binding
	Rerun   key.Binding
	Up      key.Binding
	Down    key.Binding
	PgUp    key.Binding
	PgDown  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Advance: key.NewBinding(
		key.WithKeys("right", "enter", " ", "l"),
		key.WithHelp("→/enter", "advance / stop"),
	),
	Rewind: key.NewBinding(
		key.WithKeys("left", "backspace", "h"),
		key.WithHelp("←", "rewind"),
	),
	Rerun: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rerun"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "scroll down"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "page up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "page down"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// keyBarText renders the context-sensitive key hint string.
func keyBarText(status runStatus, help bool) string {
	if help {
		return keyStyle.Render("Esc") + keyDescStyle.Render(":close") + "  " +
			keyStyle.Render("q") + keyDescStyle.Render(":quit")
	}
	switch status {
	case statusRunning:
		return keyStyle.Render("→") + keyDescStyle.Render(":stop") + "  " +
			keyStyle.Render("↑↓") + keyDescStyle.Render(":scroll") + "  " +
			keyStyle.Render("q") + keyDescStyle.Render(":quit")
	case statusStopping:
		return keyStyle.Render("q") + keyDescStyle.Render(":quit")
	case statusFinished:
		return keyStyle.Render("←") + keyDescStyle.Render(":rewind") + "  " +
			keyStyle.Render("r") + keyDescStyle.Render(":rerun") + "  " +
			keyStyle.Render("↑↓") + keyDescStyle.Render(":scroll") + "  " +
			keyStyle.Render("q") + keyDescStyle.Render(":quit")
	}
	return keyStyle.Render("→") + keyDescStyle.Render(":advance") + "  " +
		keyStyle.Render("←") + keyDescStyle.Render(":rewind") + "  " +
		keyStyle.Render("r") + keyDescStyle.Render(":rerun") + "  " +
		keyStyle.Render("PgUp/Dn") + keyDescStyle.Render(":scroll") + "  " +
		keyStyle.Render("q") + keyDescStyle.Render(":quit") + "  " +
		keyStyle.Render("?") + keyDescStyle.Render(":help")
}
