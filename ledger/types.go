package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeStatus describes the last-known operational condition of a node.
type NodeStatus int

const (
	StatusNormal NodeStatus = iota
	StatusScaling
	StatusAlert
)

func (s NodeStatus) String() string {
	switch s {
	case StatusNormal:
		return "Normal"
	case StatusScaling:
		return "Scaling"
	case StatusAlert:
		return "Alert"
	default:
		return fmt.Sprintf("NodeStatus(%d)", int(s))
	}
}

// ParseStatus maps a status label to its NodeStatus value. Matching is
// case-insensitive because node emitters are not consistent about casing.
func ParseStatus(s string) (NodeStatus, error) {
	switch {
	case strings.EqualFold(s, "Normal"):
		return StatusNormal, nil
	case strings.EqualFold(s, "Scaling"):
		return StatusScaling, nil
	case strings.EqualFold(s, "Alert"):
		return StatusAlert, nil
	default:
		return StatusNormal, fmt.Errorf("unknown node status %q", s)
	}
}

func (s NodeStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts both the string form ("Normal") and the numeric
// form (0); node emitters send strings, older archived records carry ints.
func (s *NodeStatus) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		v, err := ParseStatus(label)
		if err != nil {
			return err
		}
		*s = v
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("node status must be a string or integer: %w", err)
	}
	if n < int(StatusNormal) || n > int(StatusAlert) {
		return fmt.Errorf("node status %d out of range", n)
	}
	*s = NodeStatus(n)
	return nil
}

// MetricsRecord is one committed telemetry observation for a node.
// Records are immutable once appended.
type MetricsRecord struct {
	NodeID            string     `json:"node_id" bson:"node_id"`
	Timestamp         int64      `json:"timestamp" bson:"timestamp"`
	MemoryUsageMB     float64    `json:"memory_usage_mb" bson:"memory_usage_mb"`
	CPULoadPercent    float64    `json:"cpu_load_percent" bson:"cpu_load_percent"`
	AllocatedMemoryMB float64    `json:"allocated_memory_mb" bson:"allocated_memory_mb"`
	Status            NodeStatus `json:"status" bson:"status"`
	ScaleAction       string     `json:"scale_action" bson:"scale_action"`
}

// ScalingEventRecord is one committed autoscaling action against a node.
// Initiator is the identity of the authorized caller that recorded it.
type ScalingEventRecord struct {
	NodeID    string `json:"node_id" bson:"node_id"`
	Timestamp int64  `json:"timestamp" bson:"timestamp"`
	Action    string `json:"action" bson:"action"`
	Reason    string `json:"reason" bson:"reason"`
	Initiator string `json:"initiator" bson:"initiator"`
}
