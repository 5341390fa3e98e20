// Package event defines the values producers hand to the realtime hub and the
// wire shapes the hub writes to clients. It is a leaf package with no internal
// imports so both producers and the transport can depend on it.
package event

import (
	"fmt"
	"strings"
)

// Type names an event kind. The set below is closed at the producer boundary;
// the router only compares types for equality and never switches on them.
type Type string

const (
	NewMessage           Type = "newMessage"
	MessageStatus        Type = "messageStatus"
	ConversationUpdate   Type = "conversationUpdate"
	ConversationAssigned Type = "conversationAssigned"
	TypingIndicator      Type = "typingIndicator"
	PresenceUpdate       Type = "presenceUpdate"
	ReadReceipt          Type = "readReceipt"
	ContactUpdate        Type = "contactUpdate"
	CampaignProgress     Type = "campaignProgress"
	PlanUpdate           Type = "planUpdate"
	SystemNotification   Type = "systemNotification"
	ConnectionStatus     Type = "connectionStatus"
	AnalyticsUpdate      Type = "analyticsUpdate"

	// Batched is reserved for the composite message produced by a batch flush.
	Batched Type = "batchedEvents"
)

var known = map[Type]struct{}{
	NewMessage:           {},
	MessageStatus:        {},
	ConversationUpdate:   {},
	ConversationAssigned: {},
	TypingIndicator:      {},
	PresenceUpdate:       {},
	ReadReceipt:          {},
	ContactUpdate:        {},
	CampaignProgress:     {},
	PlanUpdate:           {},
	SystemNotification:   {},
	ConnectionStatus:     {},
	AnalyticsUpdate:      {},
}

// Valid reports whether t is one of the producer-facing event types.
func (t Type) Valid() bool {
	_, ok := known[t]
	return ok
}

// ParseType converts s into a Type, rejecting unknown names.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Types returns every producer-facing event type.
func Types() []Type {
	out := make([]Type, 0, len(known))
	for t := range known {
		out = append(out, t)
	}
	return out
}

// Priority controls whether an event may be batched and whether it survives a
// throttled connection.
type Priority int

const (
	Normal Priority = iota
	High
	Low
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return "normal"
	}
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "high":
		*p = High
	case "normal", "":
		*p = Normal
	case "low":
		*p = Low
	default:
		return fmt.Errorf("unknown priority %q", b)
	}
	return nil
}

// Event is an immutable value produced by the backend. Scoping fields left
// empty mean "unscoped" on that axis.
type Event struct {
	Type           Type
	Data           any
	TenantID       string
	UserID         string
	ConversationID string
	Priority       Priority
	Batchable      bool
}

// WithTenant returns a copy of e scoped to tenantID.
func (e Event) WithTenant(tenantID string) Event {
	e.TenantID = tenantID
	return e
}

// WithUser returns a copy of e scoped to userID.
func (e Event) WithUser(userID string) Event {
	e.UserID = userID
	return e
}

// WithConversation returns a copy of e scoped to conversationID.
func (e Event) WithConversation(conversationID string) Event {
	e.ConversationID = conversationID
	return e
}

// CanBatch reports whether the event may be coalesced. High priority events
// are always delivered individually.
func (e Event) CanBatch() bool {
	return e.Batchable && e.Priority != High
}
