package realtime

type counters struct {
	delivered      uint64
	deliveredBytes uint64
	fanoutBytes    uint64
	batches        uint64
	skipped        uint64
	evicted        uint64
	noTargets      uint64
	removed        uint64
	encodeErrors   uint64
}

// Stats is a point-in-time view of the hub for operators.
type Stats struct {
	TotalClients              int     `json:"totalClients"`
	AuthenticatedClients      int     `json:"authenticatedClients"`
	ThrottledClients          int     `json:"throttledClients"`
	QueueSize                 int     `json:"queueSize"`
	BatchQueueSize            int     `json:"batchQueueSize"`
	BatchedEvents             int     `json:"batchedEvents"`
	AvgSubscriptionsPerClient float64 `json:"avgSubscriptionsPerClient"`

	Delivered      uint64 `json:"delivered"`
	DeliveredBytes uint64 `json:"deliveredBytes"`
	FanoutBytes    uint64 `json:"fanoutBytes"`
	BatchesFlushed uint64 `json:"batchesFlushed"`
	Skipped        uint64 `json:"skippedThrottled"`
	Evicted        uint64 `json:"evicted"`
	NoTargets      uint64 `json:"droppedNoTargets"`
	Removed        uint64 `json:"removed"`
	EncodeErrors   uint64 `json:"encodeErrors"`

	// NetworkEfficiency is DeliveredBytes / FanoutBytes, where FanoutBytes is
	// what sending every broadcast to every live session would have cost.
	NetworkEfficiency float64 `json:"networkEfficiency"`
}

// Stats returns current gauges and cumulative counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{
		TotalClients:   h.registry.len(),
		QueueSize:      h.queue.len(),
		BatchQueueSize: h.batcher.len(),
		BatchedEvents:  h.batcher.pending(),
		Delivered:      h.counters.delivered,
		DeliveredBytes: h.counters.deliveredBytes,
		FanoutBytes:    h.counters.fanoutBytes,
		BatchesFlushed: h.counters.batches,
		Skipped:        h.counters.skipped,
		Evicted:        h.counters.evicted,
		NoTargets:      h.counters.noTargets,
		Removed:        h.counters.removed,
		EncodeErrors:   h.counters.encodeErrors,
	}

	subs := 0
	for _, s := range h.registry.sessions {
		if s.authenticated {
			st.AuthenticatedClients++
		}
		if s.state == StateThrottled {
			st.ThrottledClients++
		}
		subs += s.filter.TypeCount()
	}
	if st.TotalClients > 0 {
		st.AvgSubscriptionsPerClient = float64(subs) / float64(st.TotalClients)
	}
	if st.FanoutBytes > 0 {
		st.NetworkEfficiency = float64(st.DeliveredBytes) / float64(st.FanoutBytes)
	}
	return st
}
