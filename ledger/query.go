package ledger

import "fmt"

// QueryMetricsHistory scans the half-open window [start, start+count) of
// the metrics ledger and returns the records whose node id equals nodeID,
// in commit order. The whole window must lie within the ledger, otherwise
// ErrOutOfRange. Zero matches yields an empty result, not an error.
//
// Two passes: count the matches, then fill an exact-size slice. History
// windows are caller-bounded, so the extra linear pass is cheaper than a
// growable buffer.
func (l *Ledger) QueryMetricsHistory(nodeID string, start, count int) ([]MetricsRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// Subtraction form: start+count can overflow for huge counts.
	if start < 0 || count < 0 || start > len(l.metrics) || count > len(l.metrics)-start {
		return nil, fmt.Errorf("history window start=%d count=%d of %d: %w", start, count, len(l.metrics), ErrOutOfRange)
	}

	matches := 0
	for i := start; i < start+count; i++ {
		if l.metrics[i].NodeID == nodeID {
			matches++
		}
	}
	if matches == 0 {
		return []MetricsRecord{}, nil
	}

	out := make([]MetricsRecord, 0, matches)
	for i := start; i < start+count; i++ {
		if l.metrics[i].NodeID == nodeID {
			out = append(out, l.metrics[i])
		}
	}
	return out, nil
}
