package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/inboxhub/realtime/internal/watch/client"
	"github.com/inboxhub/realtime/internal/watch/theme"
	"github.com/inboxhub/realtime/internal/watch/views/eventlog"
	"github.com/inboxhub/realtime/internal/watch/views/status"
	"github.com/inboxhub/realtime/internal/ws"
)

const defaultStatsInterval = 2 * time.Second

// Subscription is what the watcher asks the server for.
type Subscription struct {
	Types         []string
	Conversations []string
}

type statsTickMsg struct{}

type statsMsg struct {
	stats *ws.StatsResponse
	err   error
	poll  bool
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	sub           Subscription
	statsInterval time.Duration
	now           func() time.Time

	statusBar status.Model
	log       eventlog.Model
	counts    map[string]int
	paused    bool
	lastErr   string

	stats    *ws.StatsResponse
	statsErr error

	connected bool
}

// New creates the root model. http may be nil to disable stats polling.
func New(wsc *client.WSClient, http *client.HTTPClient, sub Subscription) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:            wsc,
		http:          http,
		ctx:           ctx,
		cancel:        cancel,
		keys:          DefaultKeyMap(),
		sub:           sub,
		statsInterval: defaultStatsInterval,
		now:           time.Now,
		statusBar:     status.New(),
		log:           eventlog.New(),
		counts:        make(map[string]int),
	}
}

// Init starts the websocket connection and the stats poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.fetchStats(true))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		m.statusBar.Authenticated = false
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSSubscribedMsg:
		m.statusBar.SessionID = msg.Payload.SessionID
		m.statusBar.Subscriptions = len(msg.Payload.Types)
		m.statusBar.Authenticated = msg.Payload.Authenticated
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSAuthenticatedMsg:
		m.statusBar.Authenticated = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSEventMsg:
		m.record(msg.Event, false)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSBatchMsg:
		m.statusBar.Batches++
		for _, e := range msg.Events {
			m.record(e, true)
		}
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSErrorMsg:
		m.lastErr = msg.Message
		return m, m.ws.ReadLoop(m.ctx)

	case statsTickMsg:
		return m, m.fetchStats(true)

	case statsMsg:
		if msg.err != nil {
			m.statsErr = msg.err
		} else {
			m.stats = msg.stats
			m.statsErr = nil
		}
		if !msg.poll {
			return m, nil
		}
		return m, tea.Tick(m.statsInterval, func(time.Time) tea.Msg { return statsTickMsg{} })
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.log.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.log.ScrollDown(1)

	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
		m.statusBar.Paused = m.paused

	case key.Matches(msg, m.keys.Clear):
		m.counts = make(map[string]int)
		m.log.Clear()
		m.statusBar.Events = 0
		m.statusBar.Batches = 0
		m.lastErr = ""

	case key.Matches(msg, m.keys.Resubscribe):
		if err := m.ws.Subscribe(m.sub.Types, m.sub.Conversations); err != nil {
			m.lastErr = err.Error()
		}

	case key.Matches(msg, m.keys.Stats):
		return m, m.fetchStats(false)
	}
	return m, nil
}

func (m *Model) record(e client.Envelope, fromBatch bool) {
	m.counts[e.Type]++
	m.statusBar.Events++
	if m.paused {
		return
	}
	m.log.Add(eventlog.Entry{
		Time:      m.now(),
		Type:      e.Type,
		Scope:     scopeOf(e),
		Summary:   string(e.Data),
		FromBatch: fromBatch,
	})
}

// fetchStats requests /api/stats. Poll results schedule the next poll.
func (m Model) fetchStats(poll bool) tea.Cmd {
	if m.http == nil {
		return nil
	}
	h := m.http
	return func() tea.Msg {
		s, err := h.GetStats()
		return statsMsg{stats: s, err: err, poll: poll}
	}
}

func scopeOf(e client.Envelope) string {
	tenant := e.TenantID
	if tenant == "" {
		tenant = "*"
	}
	if e.ConversationID == "" {
		return tenant
	}
	return tenant + "#" + e.ConversationID
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.statusBar.View()}
	if !m.connected {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).
			Render("  DISCONNECTED: Reconnecting..."))
	}

	half := max(m.width/2-2, 20)
	top := lipgloss.JoinHorizontal(lipgloss.Top, m.renderCounts(half), m.renderStats(half))
	sections = append(sections, top)

	used := lipgloss.Height(lipgloss.JoinVertical(lipgloss.Left, sections...)) + 2
	sections = append(sections, m.log.View(m.width, m.height-used))

	if m.lastErr != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("  last error: "+m.lastErr))
	}
	sections = append(sections, theme.StyleDimmed.Render("  j/k:scroll  p:pause  c:clear  r:resubscribe  s:stats  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderCounts(width int) string {
	title := theme.StyleHeader.Render("EVENTS BY TYPE")
	if len(m.counts) == 0 {
		return theme.StyleBorder.Width(width).Render(title + "\n" + theme.StyleDimmed.Render("none yet"))
	}

	types := make([]string, 0, len(m.counts))
	for t := range m.counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if m.counts[types[i]] != m.counts[types[j]] {
			return m.counts[types[i]] > m.counts[types[j]]
		}
		return types[i] < types[j]
	})

	lines := []string{title}
	for _, t := range types {
		name := lipgloss.NewStyle().Foreground(theme.TypeColor(t)).Width(22).Render(t)
		lines = append(lines, fmt.Sprintf("%s %6d", name, m.counts[t]))
	}
	return theme.StyleBorder.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderStats(width int) string {
	title := theme.StyleHeader.Render("SERVER")
	if m.stats == nil {
		msg := "stats unavailable"
		if m.http == nil {
			msg = "stats polling disabled"
		} else if m.statsErr != nil {
			msg = m.statsErr.Error()
		}
		return theme.StyleBorder.Width(width).Render(title + "\n" + theme.StyleDimmed.Render(msg))
	}

	s := m.stats
	eff := lipgloss.NewStyle().Foreground(theme.EfficiencyColor(s.NetworkEfficiency)).
		Render(fmt.Sprintf("%.1f%%", s.NetworkEfficiency*100))
	lines := []string{
		title,
		fmt.Sprintf("clients     %d (%d auth, %d throttled)", s.TotalClients, s.AuthenticatedClients, s.ThrottledClients),
		fmt.Sprintf("queue       %d", s.QueueSize),
		fmt.Sprintf("batches     %d buckets, %d events", s.BatchQueueSize, s.BatchedEvents),
		fmt.Sprintf("delivered   %d (%s)", s.Delivered, formatBytes(s.DeliveredBytes)),
		fmt.Sprintf("efficiency  %s", eff),
		fmt.Sprintf("dropped     %d evicted, %d throttled, %d removed", s.Evicted, s.Skipped, s.Removed),
	}
	if p := s.Process; p != nil {
		lines = append(lines, fmt.Sprintf("process     %s rss, %d goroutines", formatBytes(p.RSSBytes), p.Goroutines))
	}
	if m.statsErr != nil {
		lines = append(lines, theme.StyleDimmed.Render("stale: "+m.statsErr.Error()))
	}
	return theme.StyleBorder.Width(width).Render(strings.Join(lines, "\n"))
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
