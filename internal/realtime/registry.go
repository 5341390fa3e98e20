package realtime

import (
	"errors"
	"time"

	"github.com/inboxhub/realtime/internal/event"
)

var (
	// ErrConnClosed is returned by Conn.Write once the connection is gone.
	ErrConnClosed = errors.New("connection closed")

	errEmptySessionID = errors.New("empty session id")
	errNilConn        = errors.New("nil connection")
)

// Conn is the write side of a client connection. Write must not block: the
// transport is expected to enqueue msg and report the outstanding byte count
// through Buffered.
type Conn interface {
	Write(msg []byte) error
	Buffered() int
	Closed() bool
}

// State is the backpressure classification of a session at its most recent
// delivery attempt.
type State int

const (
	StateOpen State = iota
	StateThrottled
)

func (s State) String() string {
	if s == StateThrottled {
		return "throttled"
	}
	return "open"
}

type session struct {
	id            string
	conn          Conn
	filter        *event.Filter
	authenticated bool
	lastActivity  time.Time
	state         State
}

// registry tracks live sessions. The hub lock guards it.
type registry struct {
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) add(s *session) {
	r.sessions[s.id] = s
}

// remove deletes id and reports whether it was present.
func (r *registry) remove(id string) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *registry) get(id string) (*session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *registry) isOpen(id string) bool {
	s, ok := r.sessions[id]
	return ok && !s.conn.Closed()
}

// forEachMatching calls fn for every session for which pred returns true.
func (r *registry) forEachMatching(pred func(*session) bool, fn func(*session)) {
	for _, s := range r.sessions {
		if pred(s) {
			fn(s)
		}
	}
}

func (r *registry) len() int { return len(r.sessions) }
