package event

// DefaultTypes is the subscription given to a session that connects without
// naming any event types.
var DefaultTypes = []Type{SystemNotification, PlanUpdate, ConnectionStatus}

// DefaultNonCritical lists the types a throttled session may lose.
var DefaultNonCritical = []Type{TypingIndicator, PresenceUpdate, ReadReceipt, AnalyticsUpdate, CampaignProgress}

// Filter is a session's subscription. It is never modified after
// construction; updates build a new Filter and swap it in.
type Filter struct {
	types         map[Type]struct{}
	conversations map[string]struct{}
	TenantID      string
	UserID        string
}

// NewFilter builds a filter. An empty types list falls back to DefaultTypes
// and an empty conversations list allows every conversation.
func NewFilter(tenantID, userID string, types []Type, conversations []string) *Filter {
	if len(types) == 0 {
		types = DefaultTypes
	}
	f := &Filter{
		types:         make(map[Type]struct{}, len(types)),
		conversations: make(map[string]struct{}, len(conversations)),
		TenantID:      tenantID,
		UserID:        userID,
	}
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	for _, c := range conversations {
		if c != "" {
			f.conversations[c] = struct{}{}
		}
	}
	return f
}

// DefaultFilter returns an unscoped filter with the baseline type set.
func DefaultFilter() *Filter {
	return NewFilter("", "", nil, nil)
}

// Subscribed reports whether t is in the type set.
func (f *Filter) Subscribed(t Type) bool {
	_, ok := f.types[t]
	return ok
}

// AllowsConversation reports whether events for id may reach this session.
func (f *Filter) AllowsConversation(id string) bool {
	if len(f.conversations) == 0 {
		return true
	}
	_, ok := f.conversations[id]
	return ok
}

// TypeCount returns the number of subscribed types.
func (f *Filter) TypeCount() int { return len(f.types) }

// Types returns the subscribed types in no particular order.
func (f *Filter) Types() []Type {
	out := make([]Type, 0, len(f.types))
	for t := range f.types {
		out = append(out, t)
	}
	return out
}

// Conversations returns the conversation allow-list.
func (f *Filter) Conversations() []string {
	out := make([]string, 0, len(f.conversations))
	for c := range f.conversations {
		out = append(out, c)
	}
	return out
}

// WithTypes returns a new filter with the type set replaced.
func (f *Filter) WithTypes(types []Type) *Filter {
	return NewFilter(f.TenantID, f.UserID, types, f.Conversations())
}

// WithConversations returns a new filter with the allow-list replaced.
func (f *Filter) WithConversations(conversations []string) *Filter {
	return NewFilter(f.TenantID, f.UserID, f.Types(), conversations)
}

// WithPrincipal returns a new filter scoped to tenantID and userID.
func (f *Filter) WithPrincipal(tenantID, userID string) *Filter {
	return NewFilter(tenantID, userID, f.Types(), f.Conversations())
}
