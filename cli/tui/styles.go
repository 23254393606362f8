// Package tui provides Bubble Tea components for the warnwin CLI.
//
// Two surfaces live here:
//   - the live display driven by `warnwin serve`, one box per active
//     notification in slot order
//   - the opt-in `--tui` stats view, which uses the same payloads as
//     non-TUI rendering
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/warnwin/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// NotificationStyle is the box around one notification.
	NotificationStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				Padding(0, 1)

	// SenderStyle for the sender line inside a notification box.
	SenderStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	// StatBoxStyle for stat display boxes.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	// StatLabelStyle for stat labels.
	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	// StatValueStyle for stat values.
	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// UrgencyColor returns the accent colour for an urgency tier.
func UrgencyColor(u types.Urgency) lipgloss.Color {
	switch u {
	case types.UrgencyLow:
		return mutedColor
	case types.UrgencyHigh:
		return warningColor
	case types.UrgencyCritical:
		return errorColor
	default:
		return highlightColor
	}
}

// UrgencyStyle returns a foreground style for an urgency name.
// Unknown names render in the normal colour.
func UrgencyStyle(name string) lipgloss.Style {
	u, err := types.ParseUrgency(name)
	if err != nil {
		u = types.UrgencyNormal
	}
	style := lipgloss.NewStyle().Foreground(UrgencyColor(u))
	if u == types.UrgencyCritical {
		style = style.Bold(true)
	}
	return style
}

// StateStyle returns a style based on the presentation state.
func StateStyle(state string) lipgloss.Style {
	switch types.State(state) {
	case types.StateEntering:
		return lipgloss.NewStyle().Foreground(highlightColor)
	case types.StateVisible:
		return lipgloss.NewStyle().Foreground(successColor)
	case types.StateLeaving, types.StateExpired:
		return lipgloss.NewStyle().Foreground(mutedColor)
	default:
		return ValueStyle
	}
}
