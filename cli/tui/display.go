package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/warnwin/types"
)

// Display layout.
const (
	defaultBoxWidth = 48
	// slideDistance is how many columns a box travels while entering
	// or leaving.
	slideDistance = 24
)

// DisplaySource feeds the live display. *scheduler.Scheduler satisfies it.
type DisplaySource interface {
	Subscribe(ctx context.Context) <-chan *types.Snapshot
	DismissAll()
}

// snapshotMsg wraps a published snapshot for the bubbletea loop.
type snapshotMsg struct {
	snap *types.Snapshot
}

// feedClosedMsg is sent when the snapshot subscription ends.
type feedClosedMsg struct{}

// DisplayModel renders the active notifications, one box per slot.
type DisplayModel struct {
	source   DisplaySource
	snaps    <-chan *types.Snapshot
	snap     *types.Snapshot
	bar      progress.Model
	boxWidth int
	width    int
	height   int
	quitting bool
}

// NewDisplayModel subscribes to source for the lifetime of ctx.
func NewDisplayModel(ctx context.Context, source DisplaySource) DisplayModel {
	return DisplayModel{
		source:   source,
		snaps:    source.Subscribe(ctx),
		snap:     &types.Snapshot{},
		bar:      progress.New(progress.WithoutPercentage(), progress.WithWidth(defaultBoxWidth-4)),
		boxWidth: defaultBoxWidth,
	}
}

// Init implements tea.Model.
func (m DisplayModel) Init() tea.Cmd {
	return waitForSnapshot(m.snaps)
}

// waitForSnapshot blocks until the next snapshot is published.
func waitForSnapshot(ch <-chan *types.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

// Update implements tea.Model.
func (m DisplayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		if msg.snap != nil {
			m.snap = msg.snap
		}
		return m, waitForSnapshot(m.snaps)

	case feedClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.boxWidth = min(defaultBoxWidth, max(msg.Width-slideDistance-2, 16))
		m.bar.Width = m.boxWidth - 4
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.DismissAll):
			m.source.DismissAll()
			return m, nil
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m DisplayModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if banner := AlertBanner(m.snap); banner != "" {
		b.WriteString(banner)
		b.WriteString("\n")
	}
	if m.snap.Len() == 0 {
		b.WriteString(HelpStyle.Render("No notifications"))
	}
	for i, n := range m.snap.Notifications {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderNotification(n))
	}

	help := HelpStyle.Render(fmt.Sprintf("frame %d  •  q quit  •  r dismiss all", m.snap.Frame))
	return b.String() + "\n" + help
}

// renderNotification draws one box, shifted right as it slides out of view.
func (m DisplayModel) renderNotification(n types.Notification) string {
	color := UrgencyColor(n.Urgency)

	var body strings.Builder
	title := lipgloss.NewStyle().Bold(true).Foreground(color).
		Render(strings.ToUpper(n.Urgency.String()))
	body.WriteString(title)
	if n.Sender != "" {
		body.WriteString(" ")
		body.WriteString(SenderStyle.Render(n.Sender))
	}
	body.WriteString("\n")
	body.WriteString(lipgloss.NewStyle().Width(m.boxWidth - 4).Render(n.Text))
	body.WriteString("\n")
	body.WriteString(m.bar.ViewAs(Remaining(n)))

	box := NotificationStyle.
		BorderForeground(color).
		Width(m.boxWidth - 2).
		Render(body.String())

	return lipgloss.NewStyle().MarginLeft(SlideOffset(n.Progress)).Render(box)
}

// AlertBanner renders the window alert level, or "" when not alerting.
func AlertBanner(snap *types.Snapshot) string {
	if snap == nil || !snap.Alerting {
		return ""
	}
	return lipgloss.NewStyle().Bold(true).Reverse(true).
		Foreground(UrgencyColor(snap.Alert)).
		Padding(0, 1).
		Render(strings.ToUpper(snap.Alert.String()) + " (r to reset)")
}

// SlideOffset returns the left margin for a box at the given on-screen
// progress: 0 when fully shown, slideDistance when hidden.
func SlideOffset(progress float64) int {
	progress = max(0, min(1, progress))
	return int((1 - progress) * slideDistance)
}

// Remaining returns the fraction of display time left, 1 when new.
func Remaining(n types.Notification) float64 {
	if n.DurationMs <= 0 {
		return 0
	}
	left := 1 - float64(n.AgeMs)/float64(n.DurationMs)
	return max(0, min(1, left))
}

// RunDisplay runs the live display until the user quits or ctx ends.
func RunDisplay(ctx context.Context, source DisplaySource) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewDisplayModel(ctx, source), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		// Cancelled from outside; not a display failure.
		return nil
	}
	return err
}
