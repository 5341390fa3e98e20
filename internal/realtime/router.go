package realtime

import (
	"github.com/inboxhub/realtime/internal/event"
)

// route returns the ids of live, authenticated sessions interested in e.
// It scans every session; an inverted tenant/type index would be the next step
// for processes holding tens of thousands of sessions, with identical results.
func (r *registry) route(e event.Event) targetSet {
	targets := make(targetSet)
	r.forEachMatching(func(s *session) bool {
		return s.authenticated && accepts(s.filter, e)
	}, func(s *session) {
		targets[s.id] = struct{}{}
	})
	return targets
}

// accepts applies the subscription checks in order, rejecting on the first
// mismatch.
func accepts(f *event.Filter, e event.Event) bool {
	if e.TenantID != "" && f.TenantID != e.TenantID {
		return false
	}
	if e.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if e.ConversationID != "" && !f.AllowsConversation(e.ConversationID) {
		return false
	}
	return f.Subscribed(e.Type)
}
