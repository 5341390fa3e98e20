package ws

import (
	"encoding/json"
)

// Action names an inbound control message sent by a client.
type Action string

const (
	ActionSubscribe Action = "subscribe"
	ActionAuth      Action = "auth"
	ActionPing      Action = "ping"
)

// ControlMessage is the only shape a client may send.
type ControlMessage struct {
	Action        Action   `json:"action"`
	Token         string   `json:"token,omitempty"`
	Types         []string `json:"types,omitempty"`
	Conversations []string `json:"conversations,omitempty"`
}

// Server-originated message types that are not events.
const (
	MsgPong          = "pong"
	MsgError         = "error"
	MsgSubscribed    = "subscribed"
	MsgAuthenticated = "authenticated"
)

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type SubscribedPayload struct {
	SessionID     string   `json:"sessionId"`
	Types         []string `json:"types"`
	Conversations []string `json:"conversations"`
	Authenticated bool     `json:"authenticated"`
}

func encodeServerMessage(typ string, data any) []byte {
	b, err := json.Marshal(ServerMessage{Type: typ, Data: data})
	if err != nil {
		b, _ = json.Marshal(ServerMessage{Type: MsgError, Data: ErrorPayload{Message: "internal error"}})
	}
	return b
}

// IngestRequest is the body of POST /api/events.
type IngestRequest struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	TenantID       string          `json:"tenantId,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	Priority       string          `json:"priority,omitempty"`
	Batchable      bool            `json:"batchable,omitempty"`
}
