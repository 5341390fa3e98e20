package event

import (
	"encoding/json"
)

// Envelope is the wire shape of an individually delivered event.
type Envelope struct {
	Type           Type   `json:"type"`
	Data           any    `json:"data"`
	TenantID       string `json:"tenantId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// BatchEnvelope is the wire shape of a batch flush.
type BatchEnvelope struct {
	Type Type      `json:"type"`
	Data BatchData `json:"data"`
}

type BatchData struct {
	Events    []json.RawMessage `json:"events"`
	BatchID   string            `json:"batchId"`
	Timestamp int64             `json:"timestamp"`
}

// Encode renders e as an Envelope.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:           e.Type,
		Data:           e.Data,
		TenantID:       e.TenantID,
		ConversationID: e.ConversationID,
	})
}

// EncodeBatch renders pre-encoded envelopes as one composite message.
// timestamp is in Unix milliseconds.
func EncodeBatch(batchID string, timestamp int64, events []json.RawMessage) ([]byte, error) {
	return json.Marshal(BatchEnvelope{
		Type: Batched,
		Data: BatchData{
			Events:    events,
			BatchID:   batchID,
			Timestamp: timestamp,
		},
	})
}
