package ledger

// MetricsLogged is emitted after a metrics append commits.
type MetricsLogged struct {
	NodeID    string     `json:"node_id"`
	Timestamp int64      `json:"timestamp"`
	Status    NodeStatus `json:"status"`
}

// ScalingActionPerformed is emitted after a scaling-event append commits.
type ScalingActionPerformed struct {
	NodeID    string `json:"node_id"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// Subscriber receives post-commit notifications. Delivery is synchronous
// and fire-and-forget: the ledger collects no acknowledgments and a
// subscriber that needs retry or buffering must provide its own.
type Subscriber interface {
	OnMetricsLogged(MetricsLogged)
	OnScalingActionPerformed(ScalingActionPerformed)
}

// Subscribe registers s for all future commits. Subscribers registered
// mid-stream see only appends committed after registration.
func (l *Ledger) Subscribe(s Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, s)
}
