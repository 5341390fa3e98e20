package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/inboxhub/realtime/internal/watch/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected     bool
	Authenticated bool
	SessionID     string
	Subscriptions int
	Events        int
	Batches       int
	Paused        bool
	Width         int
}

func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch {
	case m.Connected && m.Authenticated:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case m.Connected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◐ Unauthenticated")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	session := m.SessionID
	if len(session) > 8 {
		session = session[:8]
	}
	if session == "" {
		session = "-"
	}

	counts := fmt.Sprintf("session %s  %d types  %d events  %d batches",
		session, m.Subscriptions, m.Events, m.Batches)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts
	if m.Paused {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("PAUSED")
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
