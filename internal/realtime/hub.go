// Package realtime fans backend events out to connected client sessions.
//
// A Hub owns the session registry, the delivery queue and the batch buckets
// behind a single mutex. Producers call the Broadcast methods from any
// goroutine; Run drives the queue-drain and batch-flush ticks. Delivery is
// best effort: the queue drops its oldest entries when full, throttled
// sessions lose low-priority traffic, and a failed write removes the session.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inboxhub/realtime/internal/event"
)

// Options configures a Hub. Zero values take the documented defaults.
type Options struct {
	QueueCapacity  int           // default 1000
	QueueTick      time.Duration // default 150ms
	DrainPerTick   int           // default 100
	BatchTick      time.Duration // default 300ms
	BatchTimeout   time.Duration // default 300ms
	BatchThreshold int           // default 10
	HighWatermark  int           // default 1 MiB
	NonCritical    []event.Type  // default event.DefaultNonCritical

	Now    func() time.Time
	NewID  func() string
	Logger zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 1000
	}
	if o.QueueTick <= 0 {
		o.QueueTick = 150 * time.Millisecond
	}
	if o.DrainPerTick <= 0 {
		o.DrainPerTick = 100
	}
	if o.BatchTick <= 0 {
		o.BatchTick = 300 * time.Millisecond
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 300 * time.Millisecond
	}
	if o.BatchThreshold <= 0 {
		o.BatchThreshold = 10
	}
	if o.HighWatermark <= 0 {
		o.HighWatermark = DefaultHighWatermark
	}
	if o.NonCritical == nil {
		o.NonCritical = event.DefaultNonCritical
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// Hub is the realtime event distribution core.
type Hub struct {
	mu       sync.Mutex
	registry *registry
	queue    *deliveryQueue
	batcher  *batcher
	guard    *guard
	counters counters

	opts Options
	log  zerolog.Logger
}

// New creates a Hub. Call Run to start the periodic ticks.
func New(opts Options) *Hub {
	opts.applyDefaults()
	return &Hub{
		registry: newRegistry(),
		queue:    newDeliveryQueue(opts.QueueCapacity),
		batcher:  newBatcher(opts.BatchThreshold, opts.BatchTimeout),
		guard:    newGuard(opts.HighWatermark, opts.NonCritical),
		opts:     opts,
		log:      opts.Logger.With().Str("component", "hub").Logger(),
	}
}

// Run drives the queue-drain and batch-flush ticks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	queueTicker := time.NewTicker(h.opts.QueueTick)
	defer queueTicker.Stop()
	batchTicker := time.NewTicker(h.opts.BatchTick)
	defer batchTicker.Stop()

	h.log.Info().
		Dur("queue_tick", h.opts.QueueTick).
		Dur("batch_tick", h.opts.BatchTick).
		Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("hub stopped")
			return
		case <-queueTicker.C:
			h.DrainQueue()
		case <-batchTicker.C:
			h.FlushDue()
		}
	}
}

// Register adds a session. A nil filter subscribes the session to the
// baseline types. Registering an existing id replaces that session.
func (h *Hub) Register(id string, conn Conn, filter *event.Filter, authenticated bool) error {
	if id == "" {
		return errEmptySessionID
	}
	if conn == nil {
		return errNilConn
	}
	if conn.Closed() {
		return fmt.Errorf("register %s: %w", id, ErrConnClosed)
	}
	if filter == nil {
		filter = event.DefaultFilter()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.registry.get(id); ok {
		h.unregisterLocked(id)
	}
	h.registry.add(&session{
		id:            id,
		conn:          conn,
		filter:        filter,
		authenticated: authenticated,
		lastActivity:  h.opts.Now(),
	})
	h.log.Debug().Str("session", id).Bool("authenticated", authenticated).Msg("session registered")
	return nil
}

// Unregister removes a session and scrubs it from every pending delivery.
// It is idempotent and never fails.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(id)
}

func (h *Hub) unregisterLocked(id string) bool {
	if !h.registry.remove(id) {
		return false
	}
	h.queue.scrub(id)
	h.batcher.scrub(id)
	h.counters.removed++
	h.log.Debug().Str("session", id).Msg("session removed")
	return true
}

// OnConnectionOpen is the transport hook for an authenticated connection.
func (h *Hub) OnConnectionOpen(id string, conn Conn, filter *event.Filter) error {
	return h.Register(id, conn, filter, true)
}

// OnConnectionClose is the transport hook for a closed connection.
func (h *Hub) OnConnectionClose(id string) {
	h.Unregister(id)
}

// Authenticate marks a registered session as authenticated and scopes its
// filter to the given principal.
func (h *Hub) Authenticate(id, tenantID, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.registry.get(id)
	if !ok {
		return false
	}
	s.filter = s.filter.WithPrincipal(tenantID, userID)
	s.authenticated = true
	s.lastActivity = h.opts.Now()
	return true
}

// SetFilter replaces a session's subscription.
func (h *Hub) SetFilter(id string, filter *event.Filter) bool {
	if filter == nil {
		filter = event.DefaultFilter()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.registry.get(id)
	if !ok {
		return false
	}
	s.filter = filter
	s.lastActivity = h.opts.Now()
	return true
}

// Filter returns a session's current subscription.
func (h *Hub) Filter(id string) (*event.Filter, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.registry.get(id)
	if !ok {
		return nil, false
	}
	return s.filter, true
}

// Touch records client activity.
func (h *Hub) Touch(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.registry.get(id); ok {
		s.lastActivity = h.opts.Now()
	}
}

// IsOpen reports whether id is registered and its connection is writable.
func (h *Hub) IsOpen(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.isOpen(id)
}

// SetTuning swaps the backpressure watermark and non-critical type set.
func (h *Hub) SetTuning(watermark int, nonCritical []event.Type) {
	g := newGuard(watermark, nonCritical)
	h.mu.Lock()
	h.guard = g
	h.mu.Unlock()
	h.log.Info().Int("high_watermark", g.watermark).Int("non_critical", len(g.nonCritical)).Msg("tuning applied")
}

// Broadcast routes e to every interested session. High priority and
// non-batchable events are queued for the next drain tick; the rest are
// coalesced per batch key.
func (h *Hub) Broadcast(e event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := h.registry.route(e)
	if len(targets) == 0 {
		h.counters.noTargets++
		return
	}

	payload, err := event.Encode(e)
	if err != nil {
		h.counters.encodeErrors++
		h.log.Error().Err(err).Str("type", string(e.Type)).Msg("encode event")
		return
	}
	h.counters.fanoutBytes += uint64(len(payload)) * uint64(h.registry.len())

	now := h.opts.Now()
	if e.CanBatch() {
		if full := h.batcher.add(e, payload, targets, now); full != nil {
			h.flushLocked(full, now)
		}
		return
	}

	evicted := h.queue.push(&queuedDelivery{
		event:      e,
		payload:    payload,
		targets:    targets,
		enqueuedAt: now,
	})
	if evicted != nil {
		h.counters.evicted++
		h.log.Warn().
			Str("type", string(evicted.event.Type)).
			Dur("age", now.Sub(evicted.enqueuedAt)).
			Msg("delivery queue full, dropped oldest entry")
	}
}

// BroadcastToCompany broadcasts e scoped to tenantID.
func (h *Hub) BroadcastToCompany(e event.Event, tenantID string) {
	h.Broadcast(e.WithTenant(tenantID))
}

// BroadcastToUser broadcasts e scoped to userID.
func (h *Hub) BroadcastToUser(e event.Event, userID string) {
	h.Broadcast(e.WithUser(userID))
}

// BroadcastToConversation broadcasts e scoped to conversationID.
func (h *Hub) BroadcastToConversation(e event.Event, conversationID string) {
	h.Broadcast(e.WithConversation(conversationID))
}

// DrainQueue delivers up to DrainPerTick queued events. It is the body of the
// queue tick.
func (h *Hub) DrainQueue() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.queue.drain(h.opts.DrainPerTick) {
		h.deliverLocked(d.targets, d.event.Type, d.event.Priority, d.payload)
	}
}

// FlushDue flushes every bucket older than the batch timeout. It is the body
// of the batch tick.
func (h *Hub) FlushDue() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.opts.Now()
	for _, bk := range h.batcher.due(now) {
		h.flushLocked(bk, now)
	}
}

// flushLocked sends each recipient one composite holding only the events
// routed to it.
func (h *Hub) flushLocked(bk *bucket, now time.Time) {
	groups := bk.groups()
	if len(groups) == 0 {
		return
	}
	h.counters.batches++
	for _, g := range groups {
		batchID := h.opts.NewID()
		msg, err := event.EncodeBatch(batchID, now.UnixMilli(), g.events)
		if err != nil {
			h.counters.encodeErrors++
			h.log.Error().Err(err).Str("type", string(bk.key.typ)).Msg("encode batch")
			continue
		}
		h.log.Trace().
			Str("batch", batchID).
			Str("type", string(bk.key.typ)).
			Int("events", len(g.events)).
			Int("targets", len(g.targets)).
			Msg("batch flushed")
		h.deliverLocked(g.targets, bk.key.typ, g.priority, msg)
	}
}

// deliverLocked writes msg to every target still registered. Sessions whose
// write fails are removed after the loop so the remaining targets are
// unaffected.
func (h *Hub) deliverLocked(targets targetSet, typ event.Type, p event.Priority, msg []byte) {
	var failed []string
	for id := range targets {
		s, ok := h.registry.get(id)
		if !ok {
			continue
		}
		res, err := h.guard.deliver(s, typ, p, msg)
		switch res {
		case outcomeWritten:
			h.counters.delivered++
			h.counters.deliveredBytes += uint64(len(msg))
		case outcomeSkipped:
			h.counters.skipped++
		case outcomeFailed:
			h.log.Debug().Err(err).Str("session", id).Msg("write failed, removing session")
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.unregisterLocked(id)
	}
}
