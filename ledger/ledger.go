// Package ledger implements an access-controlled, append-only audit trail
// for fleet telemetry and autoscaling actions. Two ledgers (metrics and
// scaling events) share one lock with a latest-state index, so an append
// and its index update commit as a single atomic step. Reads never consult
// authorization and never block behind anything but that lock.
package ledger

import (
	"fmt"
	"sync"
	"time"
)

// Ledger owns the combined metrics ledger, scaling-event ledger,
// latest-state index and grant table. The identity given to New is the
// administrator: it is implicitly authorized, it alone may grant and
// revoke, and it cannot be revoked.
type Ledger struct {
	mu      sync.RWMutex
	admin   string
	loggers map[string]bool
	metrics []MetricsRecord
	events  []ScalingEventRecord
	latest  map[string]MetricsRecord
	subs    []Subscriber

	// now is the commit clock, replaceable in tests.
	now func() int64
}

func New(admin string) *Ledger {
	return &Ledger{
		admin:   admin,
		loggers: make(map[string]bool),
		latest:  make(map[string]MetricsRecord),
		now:     func() int64 { return time.Now().Unix() },
	}
}

// GrantLogger authorizes identity for write operations. Only the
// administrator may call it. Granting an already-granted identity is a
// no-op success.
func (l *Ledger) GrantLogger(caller, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.admin {
		return fmt.Errorf("grant logger %q by %q: %w", identity, caller, ErrNotAuthorized)
	}
	l.loggers[identity] = true
	return nil
}

// RevokeLogger withdraws a grant. Only the administrator may call it.
// Revoking an ungranted identity is a no-op success; the administrator
// itself stays authorized regardless.
func (l *Ledger) RevokeLogger(caller, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.admin {
		return fmt.Errorf("revoke logger %q by %q: %w", identity, caller, ErrNotAuthorized)
	}
	delete(l.loggers, identity)
	return nil
}

// IsAuthorized reports whether identity may perform write operations.
func (l *Ledger) IsAuthorized(identity string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.authorizedLocked(identity)
}

func (l *Ledger) authorizedLocked(identity string) bool {
	return identity == l.admin || l.loggers[identity]
}

// AppendMetrics commits a telemetry record for nodeID and unconditionally
// overwrites the latest-state entry for that node: a fresh metrics report
// is authoritative and supersedes any Scaling status left by a prior
// scaling event. The timestamp is assigned here, at commit time. Metric
// values are stored as given; the ledger is a recorder, not a validator.
// Returns the new metrics count.
func (l *Ledger) AppendMetrics(caller, nodeID string, memoryMB, cpuPercent, allocatedMB float64, status NodeStatus) (int, error) {
	l.mu.Lock()
	if !l.authorizedLocked(caller) {
		l.mu.Unlock()
		return 0, fmt.Errorf("append metrics by %q: %w", caller, ErrNotAuthorized)
	}
	if nodeID == "" {
		l.mu.Unlock()
		return 0, fmt.Errorf("append metrics: %w", ErrEmptyNodeID)
	}

	rec := MetricsRecord{
		NodeID:            nodeID,
		Timestamp:         l.now(),
		MemoryUsageMB:     memoryMB,
		CPULoadPercent:    cpuPercent,
		AllocatedMemoryMB: allocatedMB,
		Status:            status,
		ScaleAction:       "none",
	}
	l.metrics = append(l.metrics, rec)
	l.latest[nodeID] = rec
	count := len(l.metrics)
	subs := l.subs
	l.mu.Unlock()

	// Fan-out runs strictly after the lock is released: the record is
	// queryable before any subscriber observes the notification.
	for _, s := range subs {
		s.OnMetricsLogged(MetricsLogged{NodeID: rec.NodeID, Timestamp: rec.Timestamp, Status: rec.Status})
	}
	return count, nil
}

// AppendScalingEvent commits an autoscaling action with caller recorded as
// its initiator. In the same atomic step, if nodeID already has a
// latest-state entry, that entry's scale action and status are rewritten;
// if the node has never reported metrics no entry is created, the event is
// still recorded. Returns the new event count.
func (l *Ledger) AppendScalingEvent(caller, nodeID, action, reason string) (int, error) {
	l.mu.Lock()
	if !l.authorizedLocked(caller) {
		l.mu.Unlock()
		return 0, fmt.Errorf("append scaling event by %q: %w", caller, ErrNotAuthorized)
	}
	if nodeID == "" {
		l.mu.Unlock()
		return 0, fmt.Errorf("append scaling event: %w", ErrEmptyNodeID)
	}

	ev := ScalingEventRecord{
		NodeID:    nodeID,
		Timestamp: l.now(),
		Action:    action,
		Reason:    reason,
		Initiator: caller,
	}
	l.events = append(l.events, ev)
	if cur, ok := l.latest[nodeID]; ok {
		cur.ScaleAction = action
		cur.Status = StatusScaling
		l.latest[nodeID] = cur
	}
	count := len(l.events)
	subs := l.subs
	l.mu.Unlock()

	for _, s := range subs {
		s.OnScalingActionPerformed(ScalingActionPerformed{NodeID: ev.NodeID, Action: ev.Action, Timestamp: ev.Timestamp})
	}
	return count, nil
}

// MetricsCount returns the number of committed metrics records.
func (l *Ledger) MetricsCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.metrics)
}

// ScalingEventsCount returns the number of committed scaling events.
func (l *Ledger) ScalingEventsCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// MetricsAt returns the metrics record at index i in commit order.
func (l *Ledger) MetricsAt(i int) (MetricsRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.metrics) {
		return MetricsRecord{}, fmt.Errorf("metrics index %d of %d: %w", i, len(l.metrics), ErrOutOfRange)
	}
	return l.metrics[i], nil
}

// ScalingEventAt returns the scaling event at index i in commit order.
func (l *Ledger) ScalingEventAt(i int) (ScalingEventRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.events) {
		return ScalingEventRecord{}, fmt.Errorf("scaling event index %d of %d: %w", i, len(l.events), ErrOutOfRange)
	}
	return l.events[i], nil
}

// Latest returns the latest-state entry for nodeID. A node that has never
// reported metrics yields the zero record, not an error; callers can test
// NodeID == "" since no committed record ever has an empty node id.
func (l *Ledger) Latest(nodeID string) MetricsRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest[nodeID]
}
