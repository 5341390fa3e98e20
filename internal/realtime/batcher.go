package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/inboxhub/realtime/internal/event"
)

const wildcard = "*"

// batchKey groups batchable events that may be coalesced.
type batchKey struct {
	typ          event.Type
	tenant       string
	conversation string
}

func keyFor(e event.Event) batchKey {
	k := batchKey{typ: e.Type, tenant: wildcard, conversation: wildcard}
	if e.TenantID != "" {
		k.tenant = e.TenantID
	}
	if e.ConversationID != "" {
		k.conversation = e.ConversationID
	}
	return k
}

// batchEntry is one coalesced event and the sessions routed for it.
type batchEntry struct {
	payload  json.RawMessage
	priority event.Priority
	targets  targetSet
}

type bucket struct {
	key       batchKey
	entries   []batchEntry
	createdAt time.Time
}

// batchGroup is one composite message: the events shared by a set of
// recipients, in emission order.
type batchGroup struct {
	events   []json.RawMessage
	priority event.Priority
	targets  targetSet
}

// groups splits the bucket by recipient. Every session gets exactly the
// events routed to it; sessions routed to the same events share a group.
func (bk *bucket) groups() []batchGroup {
	var (
		order []string
		byID  = make(map[string][]int)
	)
	for i, en := range bk.entries {
		for id := range en.targets {
			if _, ok := byID[id]; !ok {
				order = append(order, id)
			}
			byID[id] = append(byID[id], i)
		}
	}

	var out []batchGroup
	index := make(map[string]int)
	for _, id := range order {
		idx := byID[id]
		sig := fmt.Sprint(idx)
		if gi, ok := index[sig]; ok {
			out[gi].targets[id] = struct{}{}
			continue
		}
		g := batchGroup{priority: event.Low, targets: targetSet{id: {}}}
		for _, i := range idx {
			g.events = append(g.events, bk.entries[i].payload)
			if bk.entries[i].priority == event.Normal {
				g.priority = event.Normal
			}
		}
		index[sig] = len(out)
		out = append(out, g)
	}
	return out
}

// batcher coalesces batchable events per key. The hub lock guards it.
type batcher struct {
	buckets   map[batchKey]*bucket
	threshold int
	timeout   time.Duration
}

func newBatcher(threshold int, timeout time.Duration) *batcher {
	if threshold < 1 {
		threshold = 1
	}
	return &batcher{
		buckets:   make(map[batchKey]*bucket),
		threshold: threshold,
		timeout:   timeout,
	}
}

// add appends an encoded event and its own target set to the event's bucket.
// When the bucket reaches the threshold it is removed and returned for
// immediate delivery.
func (b *batcher) add(e event.Event, payload []byte, targets targetSet, now time.Time) *bucket {
	k := keyFor(e)
	bk, ok := b.buckets[k]
	if !ok {
		bk = &bucket{key: k, createdAt: now}
		b.buckets[k] = bk
	}
	p := event.Low
	if e.Priority == event.Normal {
		p = event.Normal
	}
	bk.entries = append(bk.entries, batchEntry{payload: payload, priority: p, targets: targets})

	if len(bk.entries) >= b.threshold {
		delete(b.buckets, k)
		return bk
	}
	return nil
}

// due removes and returns every bucket whose age has reached the timeout.
func (b *batcher) due(now time.Time) []*bucket {
	var out []*bucket
	for k, bk := range b.buckets {
		if now.Sub(bk.createdAt) >= b.timeout {
			delete(b.buckets, k)
			out = append(out, bk)
		}
	}
	return out
}

// scrub removes id from every pending entry's target set.
func (b *batcher) scrub(id string) {
	for _, bk := range b.buckets {
		for _, en := range bk.entries {
			delete(en.targets, id)
		}
	}
}

func (b *batcher) len() int { return len(b.buckets) }

// pending returns the number of events waiting across all buckets.
func (b *batcher) pending() int {
	n := 0
	for _, bk := range b.buckets {
		n += len(bk.entries)
	}
	return n
}
