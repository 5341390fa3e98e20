package realtime

import (
	"github.com/inboxhub/realtime/internal/event"
)

// DefaultHighWatermark is the buffered byte count above which a session is
// treated as a slow consumer.
const DefaultHighWatermark = 1 << 20

type outcome int

const (
	outcomeWritten outcome = iota
	outcomeSkipped
	outcomeFailed
)

// guard gates writes to a session based on its outstanding buffered bytes.
type guard struct {
	watermark   int
	nonCritical map[event.Type]struct{}
}

func newGuard(watermark int, nonCritical []event.Type) *guard {
	if watermark <= 0 {
		watermark = DefaultHighWatermark
	}
	g := &guard{
		watermark:   watermark,
		nonCritical: make(map[event.Type]struct{}, len(nonCritical)),
	}
	for _, t := range nonCritical {
		g.nonCritical[t] = struct{}{}
	}
	return g
}

// droppable reports whether a throttled session may skip this delivery.
func (g *guard) droppable(typ event.Type, p event.Priority) bool {
	if p == event.High {
		return false
	}
	if p == event.Low {
		return true
	}
	_, ok := g.nonCritical[typ]
	return ok
}

// deliver writes msg to s unless s is throttled and the message is droppable.
// The session state is recomputed on every call.
func (g *guard) deliver(s *session, typ event.Type, p event.Priority, msg []byte) (outcome, error) {
	if s.conn.Buffered() > g.watermark {
		s.state = StateThrottled
		if g.droppable(typ, p) {
			return outcomeSkipped, nil
		}
	} else {
		s.state = StateOpen
	}

	if err := s.conn.Write(msg); err != nil {
		return outcomeFailed, err
	}
	return outcomeWritten, nil
}
