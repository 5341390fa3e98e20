// Package eventlog provides the scrollable log of received events.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/inboxhub/realtime/internal/watch/theme"
)

const (
	maxEntries  = 500
	typeWidth   = 22
	prefixWidth = 12 + 1 + 1 + 1 + typeWidth + 1 // time, marker, type and separators
)

// Entry is a single received event.
type Entry struct {
	Time      time.Time
	Type      string
	Scope     string
	Summary   string
	FromBatch bool
}

type Model struct {
	Entries []Entry
	Offset  int // scroll offset from bottom
}

func New() Model {
	return Model{}
}

// Add appends an entry and caps the buffer.
func (m *Model) Add(e Entry) {
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

func (m *Model) Clear() {
	m.Entries = nil
	m.Offset = 0
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	limit := max(len(m.Entries)-1, 0)
	if m.Offset > limit {
		m.Offset = limit
	}
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// View renders the newest entries that fit in height lines.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-4, 3)

	title := theme.StyleHeader.Render(" EVENTS ")
	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No events received yet.")
		return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-visible, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		marker := " "
		if e.FromBatch {
			marker = lipgloss.NewStyle().Foreground(theme.ColorBatch).Render("▪")
		}
		typ := lipgloss.NewStyle().Foreground(theme.TypeColor(e.Type)).Width(typeWidth).Render(e.Type)
		rest := truncate(e.Scope+" "+e.Summary, innerW-prefixWidth)
		line := fmt.Sprintf("%s %s %s %s", ts, marker, typ, rest)
		lines = append(lines, line)
	}

	parts := []string{title, strings.Join(lines, "\n")}
	if m.Offset > 0 {
		parts = append(parts, theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset)))
	}
	return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
