package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/inboxhub/realtime/internal/event"
	"github.com/inboxhub/realtime/internal/ws"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

// Envelope is a single event as received on the wire.
type Envelope struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	TenantID       string          `json:"tenantId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
}

// WSClient manages the websocket connection to the realtime server.
type WSClient struct {
	url   string
	token string
	log   zerolog.Logger

	mu         sync.Mutex
	writeMu    sync.Mutex // serialises conn writes
	conn       *websocket.Conn
	pingCancel context.CancelFunc
}

func NewWSClient(url, token string, log zerolog.Logger) *WSClient {
	return &WSClient{url: url, token: token, log: log}
}

// --- Bubble Tea messages ---

type WSConnectedMsg struct{}

type WSDisconnectedMsg struct{ Err error }

// WSSubscribedMsg acknowledges the session's current subscription.
type WSSubscribedMsg struct{ Payload ws.SubscribedPayload }

// WSEventMsg delivers one individually sent event.
type WSEventMsg struct{ Event Envelope }

// WSBatchMsg delivers every event of one batch flush.
type WSBatchMsg struct {
	BatchID   string
	Timestamp int64
	Events    []Envelope
}

type WSAuthenticatedMsg struct{}

type WSErrorMsg struct{ Message string }

// Listen returns a command that dials until it connects or ctx ends.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			header := http.Header{}
			if c.token != "" {
				header.Set("Authorization", "Bearer "+c.token)
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
			if err != nil {
				c.log.Debug().Err(err).Dur("retry", delay).Msg("ws dial failed")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			if c.pingCancel != nil {
				c.pingCancel()
			}
			pingCtx, cancel := context.WithCancel(ctx)
			c.conn = conn
			c.pingCancel = cancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)
			c.log.Info().Str("url", c.url).Msg("ws connected")
			return WSConnectedMsg{}
		}
	}
}

// ReadLoop returns a command that reads until the next message the UI cares
// about. Start it after WSConnectedMsg and again after each delivered message.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: errNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return WSDisconnectedMsg{Err: err}
			}
			conn.SetReadDeadline(time.Now().Add(pongTimeout))

			if msg := decode(data); msg != nil {
				return msg
			}
		}
	}
}

// Subscribe replaces the session's subscription.
func (c *WSClient) Subscribe(types, conversations []string) error {
	return c.send(ws.ControlMessage{Action: ws.ActionSubscribe, Types: types, Conversations: conversations})
}

func (c *WSClient) send(msg ws.ControlMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

// pingLoop keeps the session's activity fresh on the server.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			if err := c.send(ws.ControlMessage{Action: ws.ActionPing}); err != nil {
				return
			}
		}
	}
}

// decode turns a server frame into a Bubble Tea message. Frames the UI does
// not display return nil.
func decode(data []byte) tea.Msg {
	var head struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil
	}

	switch head.Type {
	case ws.MsgPong:
		return nil
	case ws.MsgAuthenticated:
		return WSAuthenticatedMsg{}
	case ws.MsgSubscribed:
		var p ws.SubscribedPayload
		if json.Unmarshal(head.Data, &p) == nil {
			return WSSubscribedMsg{Payload: p}
		}
	case ws.MsgError:
		var p ws.ErrorPayload
		if json.Unmarshal(head.Data, &p) == nil {
			return WSErrorMsg{Message: p.Message}
		}
	case string(event.Batched):
		var b event.BatchData
		if err := json.Unmarshal(head.Data, &b); err != nil {
			return WSErrorMsg{Message: fmt.Sprintf("bad batch: %v", err)}
		}
		out := WSBatchMsg{BatchID: b.BatchID, Timestamp: b.Timestamp, Events: make([]Envelope, 0, len(b.Events))}
		for _, raw := range b.Events {
			var e Envelope
			if json.Unmarshal(raw, &e) == nil {
				out.Events = append(out.Events, e)
			}
		}
		return out
	default:
		var e Envelope
		if json.Unmarshal(data, &e) == nil {
			return WSEventMsg{Event: e}
		}
	}
	return nil
}
