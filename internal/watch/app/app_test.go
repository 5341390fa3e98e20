package app

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/inboxhub/realtime/internal/realtime"
	"github.com/inboxhub/realtime/internal/watch/client"
	"github.com/inboxhub/realtime/internal/ws"
)

func newTestModel() Model {
	m := New(client.NewWSClient("ws://127.0.0.1:1/ws", "", zerolog.Nop()), nil, Subscription{})
	m.width = 120
	m.height = 40
	m.statusBar.Width = 120
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func envelope(typ, tenant, conv string) client.Envelope {
	return client.Envelope{Type: typ, Data: json.RawMessage(`{"n":1}`), TenantID: tenant, ConversationID: conv}
}

func TestEventsAreCounted(t *testing.T) {
	m := newTestModel()
	m = update(t, m, client.WSConnectedMsg{})
	m = update(t, m, client.WSEventMsg{Event: envelope("newMessage", "acme", "c1")})
	m = update(t, m, client.WSBatchMsg{BatchID: "b1", Events: []client.Envelope{
		envelope("typingIndicator", "acme", "c1"),
		envelope("typingIndicator", "acme", "c1"),
	}})

	if m.counts["newMessage"] != 1 || m.counts["typingIndicator"] != 2 {
		t.Errorf("counts = %v", m.counts)
	}
	if m.statusBar.Events != 3 || m.statusBar.Batches != 1 {
		t.Errorf("status events=%d batches=%d, want 3/1", m.statusBar.Events, m.statusBar.Batches)
	}
	if len(m.log.Entries) != 3 {
		t.Fatalf("log entries = %d, want 3", len(m.log.Entries))
	}
	if m.log.Entries[0].FromBatch || !m.log.Entries[1].FromBatch {
		t.Error("batch flag not recorded")
	}
	if m.log.Entries[0].Scope != "acme#c1" {
		t.Errorf("scope = %q", m.log.Entries[0].Scope)
	}

	v := m.View()
	if !strings.Contains(v, "typingIndicator") || !strings.Contains(v, "EVENTS BY TYPE") {
		t.Error("view should list counted types")
	}
}

func TestPauseStopsLoggingButKeepsCounting(t *testing.T) {
	m := newTestModel()
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if !m.paused || !m.statusBar.Paused {
		t.Fatal("p should pause")
	}

	m = update(t, m, client.WSEventMsg{Event: envelope("planUpdate", "", "")})
	if m.counts["planUpdate"] != 1 {
		t.Error("paused model should still count")
	}
	if len(m.log.Entries) != 0 {
		t.Error("paused model should not log")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if len(m.counts) != 0 || m.statusBar.Events != 0 {
		t.Error("c should clear counters")
	}
}

func TestSubscribedUpdatesStatus(t *testing.T) {
	m := newTestModel()
	m = update(t, m, client.WSSubscribedMsg{Payload: ws.SubscribedPayload{
		SessionID:     "abcdef123456",
		Types:         []string{"newMessage", "planUpdate"},
		Authenticated: false,
	}})
	if m.statusBar.SessionID != "abcdef123456" || m.statusBar.Subscriptions != 2 || m.statusBar.Authenticated {
		t.Errorf("status = %+v", m.statusBar)
	}
	m = update(t, m, client.WSAuthenticatedMsg{})
	if !m.statusBar.Authenticated {
		t.Error("authenticated message should update status")
	}
}

func TestDisconnectOverlay(t *testing.T) {
	m := newTestModel()
	m = update(t, m, client.WSConnectedMsg{})
	m = update(t, m, client.WSDisconnectedMsg{Err: errors.New("connection reset")})

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("disconnect overlay should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "connection reset") {
		t.Error("view should show the last error")
	}
}

func TestStatsMessage(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(statsMsg{stats: &ws.StatsResponse{
		Stats:       realtime.Stats{TotalClients: 7, NetworkEfficiency: 0.125},
		Connections: 7,
	}, poll: true})
	if cmd == nil {
		t.Error("poll result should schedule the next poll")
	}

	next, cmd := m.Update(statsMsg{err: errors.New("boom")})
	if cmd != nil {
		t.Error("manual refresh should not schedule a poll")
	}
	m = next.(Model)
	if m.statsErr == nil {
		t.Error("stats error not recorded")
	}

	m = update(t, m, statsMsg{stats: &ws.StatsResponse{Stats: realtime.Stats{TotalClients: 7, NetworkEfficiency: 0.125}}})
	v := m.View()
	if !strings.Contains(v, "12.5%") || !strings.Contains(v, "7 (") {
		t.Errorf("stats panel missing values:\n%s", v)
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
	select {
	case <-m.ctx.Done():
	case <-time.After(time.Second):
		t.Error("quit should cancel the model context")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512B"},
		{2048, "2.0KiB"},
		{3 << 20, "3.0MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
