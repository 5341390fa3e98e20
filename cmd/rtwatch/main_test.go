package main

import (
	"net/url"
	"testing"

	"github.com/inboxhub/realtime/internal/watch/app"
)

func TestSubscribeURL(t *testing.T) {
	got, err := subscribeURL("ws://localhost:8080/ws", "acme", "alice", app.Subscription{
		Types:         []string{"newMessage", "planUpdate"},
		Conversations: []string{"c1"},
	})
	if err != nil {
		t.Fatalf("subscribeURL() error: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("tenantId") != "acme" || q.Get("userId") != "alice" {
		t.Errorf("principal query = %v", q)
	}
	if q.Get("types") != "newMessage,planUpdate" || q.Get("conversations") != "c1" {
		t.Errorf("subscription query = %v", q)
	}
	if u.Path != "/ws" || u.Host != "localhost:8080" {
		t.Errorf("url = %s", got)
	}
}

func TestDeriveHTTPBase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ws://127.0.0.1:8080/ws", "http://127.0.0.1:8080"},
		{"wss://rt.example.com/ws", "https://rt.example.com"},
	}
	for _, tt := range tests {
		if got := deriveHTTPBase(tt.in); got != tt.want {
			t.Errorf("deriveHTTPBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitList() = %v", got)
	}
	if splitList("") != nil {
		t.Error("empty input should give nil")
	}
}
