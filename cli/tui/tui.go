package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
)

// View types that support --tui.
const (
	ViewStats = "stats"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	switch viewType {
	case ViewStats:
		return RunStatsTUI(data)
	default:
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only read-only summary views do; list output changes every tick
// and is served by the live display instead.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewStats}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit       key.Binding
	DismissAll key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	DismissAll: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "dismiss all"),
	),
}
