package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/warnwin/cli/reader"
)

// StatsModel is a Bubble Tea model for the stats view.
type StatsModel struct {
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(data any) StatsModel {
	return StatsModel{data: data}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return m.renderStats() + "\n" + help
}

func (m StatsModel) renderStats() string {
	data, ok := m.data.(*reader.StatsResponse)
	if !ok || data == nil {
		return "Invalid data type for stats"
	}
	s := data.Stats

	var b strings.Builder
	b.WriteString(TitleStyle.Render("warnwin " + s.InstanceID))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Listen:"), ValueStyle.Render(s.Listen)))
	b.WriteString(fmt.Sprintf("%s %s\n\n", LabelStyle.Render("Uptime:"), ValueStyle.Render(data.Uptime)))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Active", int64(data.Active), highlightColor),
		m.renderStatBox("Accepted", s.NotificationsAccepted, successColor),
		m.renderStatBox("Adjusted", s.PolicyAdjusted, warningColor),
		m.renderStatBox("Protocol errors", s.ProtocolErrors, errorColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Connections", s.ConnectionsAccepted, highlightColor),
		m.renderStatBox("Refused", s.ConnectionsRefused, errorColor),
		m.renderStatBox("Timed out", s.ConnectionsTimedOut, warningColor),
		m.renderStatBox("Inbox full", s.InboxFull, errorColor),
	))

	if len(s.ProtocolErrorsByKind) > 0 {
		b.WriteString("\n\n")
		b.WriteString(renderCounts("Protocol errors by kind", s.ProtocolErrorsByKind))
	}
	if len(s.ViolationsByKind) > 0 {
		b.WriteString("\n\n")
		b.WriteString(renderCounts("Policy adjustments by kind", s.ViolationsByKind))
	}
	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

func renderCounts(title string, counts map[string]int64) string {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render(title))
	for _, k := range kinds {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s", LabelStyle.Width(24).Render(k+":"),
			ValueStyle.Render(fmt.Sprintf("%d", counts[k]))))
	}
	return b.String()
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(data any) error {
	model := NewStatsModel(data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(data any) string {
	model := NewStatsModel(data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
