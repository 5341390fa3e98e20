package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/inboxhub/realtime/internal/event"
	"github.com/inboxhub/realtime/internal/ws"
)

func TestDecode(t *testing.T) {
	single, _ := event.Encode(event.Event{Type: event.NewMessage, Data: 1, TenantID: "acme", ConversationID: "c1"})
	batch, _ := event.EncodeBatch("b-1", 1700000000000, []json.RawMessage{single, single})

	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, msg any)
	}{
		{"pong", `{"type":"pong"}`, func(t *testing.T, msg any) {
			if msg != nil {
				t.Errorf("pong should be swallowed, got %T", msg)
			}
		}},
		{"garbage", `not json`, func(t *testing.T, msg any) {
			if msg != nil {
				t.Errorf("garbage should be swallowed, got %T", msg)
			}
		}},
		{"subscribed", `{"type":"subscribed","data":{"sessionId":"s1","types":["newMessage"],"conversations":[],"authenticated":true}}`, func(t *testing.T, msg any) {
			m, ok := msg.(WSSubscribedMsg)
			if !ok || m.Payload.SessionID != "s1" || !m.Payload.Authenticated {
				t.Errorf("got %#v", msg)
			}
		}},
		{"error", `{"type":"error","data":{"message":"rate limited"}}`, func(t *testing.T, msg any) {
			if m, ok := msg.(WSErrorMsg); !ok || m.Message != "rate limited" {
				t.Errorf("got %#v", msg)
			}
		}},
		{"authenticated", `{"type":"authenticated"}`, func(t *testing.T, msg any) {
			if _, ok := msg.(WSAuthenticatedMsg); !ok {
				t.Errorf("got %#v", msg)
			}
		}},
		{"event", string(single), func(t *testing.T, msg any) {
			m, ok := msg.(WSEventMsg)
			if !ok || m.Event.Type != "newMessage" || m.Event.TenantID != "acme" || m.Event.ConversationID != "c1" {
				t.Errorf("got %#v", msg)
			}
		}},
		{"batch", string(batch), func(t *testing.T, msg any) {
			m, ok := msg.(WSBatchMsg)
			if !ok {
				t.Fatalf("got %#v", msg)
			}
			if m.BatchID != "b-1" || m.Timestamp != 1700000000000 || len(m.Events) != 2 {
				t.Errorf("batch = %+v", m)
			}
			if m.Events[0].Type != "newMessage" {
				t.Errorf("inner type = %q", m.Events[0].Type)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, decode([]byte(tt.frame)))
		})
	}
}

func TestGetStats(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer admin" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"totalClients":3,"queueSize":2,"networkEfficiency":0.5,"connections":3}`))
	}))
	defer ts.Close()

	s, err := NewHTTPClient(ts.URL, "admin").GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if s.TotalClients != 3 || s.QueueSize != 2 || s.Connections != 3 || s.NetworkEfficiency != 0.5 {
		t.Errorf("stats = %+v", s)
	}

	if _, err := NewHTTPClient(ts.URL, "wrong").GetStats(); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("bad token error = %v, want 401", err)
	}
}

func TestListenReadAndSubscribe(t *testing.T) {
	gotAuth := make(chan string, 1)
	gotControl := make(chan ws.ControlMessage, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"planUpdate","data":{"plan":"pro"},"tenantId":"acme"}`))

		var msg ws.ControlMessage
		if err := conn.ReadJSON(&msg); err == nil {
			gotControl <- msg
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewWSClient("ws"+strings.TrimPrefix(ts.URL, "http"), "tok", zerolog.Nop())
	if _, ok := c.Listen(ctx)().(WSConnectedMsg); !ok {
		t.Fatal("Listen did not connect")
	}
	if h := <-gotAuth; h != "Bearer tok" {
		t.Errorf("Authorization = %q", h)
	}

	msg := c.ReadLoop(ctx)()
	ev, ok := msg.(WSEventMsg)
	if !ok || ev.Event.Type != "planUpdate" || ev.Event.TenantID != "acme" {
		t.Fatalf("ReadLoop() = %#v, want planUpdate event", msg)
	}

	if err := c.Subscribe([]string{"newMessage"}, []string{"c1"}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	select {
	case m := <-gotControl:
		if m.Action != ws.ActionSubscribe || len(m.Types) != 1 || m.Conversations[0] != "c1" {
			t.Errorf("control = %+v", m)
		}
	case <-ctx.Done():
		t.Fatal("server never received subscribe")
	}

	if _, ok := c.ReadLoop(ctx)().(WSDisconnectedMsg); !ok {
		t.Error("ReadLoop should report disconnect after server closes")
	}
	if err := c.Subscribe(nil, nil); err == nil {
		t.Error("Subscribe after disconnect should fail")
	}
}

func TestListenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewWSClient("ws://127.0.0.1:1/ws", "", zerolog.Nop())
	if msg := c.Listen(ctx)(); msg != nil {
		t.Errorf("Listen() on cancelled ctx = %#v, want nil", msg)
	}
}
