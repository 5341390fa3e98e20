package realtime

import (
	"time"

	"github.com/inboxhub/realtime/internal/event"
)

// targetSet is a set of session ids.
type targetSet map[string]struct{}

// queuedDelivery is an individually routed event awaiting a drain tick.
type queuedDelivery struct {
	event      event.Event
	payload    []byte
	targets    targetSet
	enqueuedAt time.Time
}

// deliveryQueue is a fixed-capacity FIFO ring. When full, Push evicts the
// oldest entry. It is not safe for concurrent use; the hub lock guards it.
type deliveryQueue struct {
	buf      []*queuedDelivery
	head     int // read position
	tail     int // write position
	count    int
	capacity int
}

func newDeliveryQueue(capacity int) *deliveryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &deliveryQueue{
		buf:      make([]*queuedDelivery, capacity),
		capacity: capacity,
	}
}

// push appends d and returns the entry evicted to make room, if any.
func (q *deliveryQueue) push(d *queuedDelivery) (evicted *queuedDelivery) {
	if q.count == q.capacity {
		evicted = q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % q.capacity
		q.count--
	}
	q.buf[q.tail] = d
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	return evicted
}

// drain removes up to max entries in FIFO order. max <= 0 drains everything.
func (q *deliveryQueue) drain(max int) []*queuedDelivery {
	if q.count == 0 {
		return nil
	}
	n := q.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]*queuedDelivery, n)
	for i := 0; i < n; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = nil // Clear reference for GC
		q.head = (q.head + 1) % q.capacity
		q.count--
	}
	return out
}

// scrub removes id from every pending entry's target set.
func (q *deliveryQueue) scrub(id string) {
	for i := 0; i < q.count; i++ {
		delete(q.buf[(q.head+i)%q.capacity].targets, id)
	}
}

func (q *deliveryQueue) len() int { return q.count }
