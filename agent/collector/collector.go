// Package collector gathers telemetry snapshots from the fleet. Two
// sources exist: plain HTTP node emitters exposing a /metrics document,
// and the kubernetes metrics API for fleets running as cluster nodes.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Snapshot is one raw observation as a node emitter reports it. Field
// names follow the emitter JSON document.
type Snapshot struct {
	NodeID            string  `json:"nodeId"`
	MemoryUsageMB     float64 `json:"memoryUsage"`
	CPULoadPercent    float64 `json:"cpuLoad"`
	AllocatedMemoryMB float64 `json:"allocatedMemory"`
	Status            string  `json:"status"`
	Timestamp         float64 `json:"timestamp"`
}

// Collector produces one snapshot per reachable node. A partial result is
// fine: nodes that fail to answer are skipped for the cycle.
type Collector interface {
	Collect(ctx context.Context) ([]Snapshot, error)
}

// HTTPCollector polls node emitters over their request/response metrics
// endpoint.
type HTTPCollector struct {
	endpoints []string
	httpc     *http.Client
}

func NewHTTPCollector(endpoints []string) *HTTPCollector {
	return &HTTPCollector{
		endpoints: endpoints,
		httpc:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPCollector) Collect(ctx context.Context) ([]Snapshot, error) {
	snapshots := make([]Snapshot, 0, len(c.endpoints))
	for _, endpoint := range c.endpoints {
		snap, err := c.fetch(ctx, endpoint)
		if err != nil {
			klog.Warningf("Node emitter %s unreachable, skipping this cycle: %v", endpoint, err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (c *HTTPCollector) fetch(ctx context.Context, endpoint string) (Snapshot, error) {
	url := strings.TrimRight(endpoint, "/") + "/metrics"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("emitter returned status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode emitter document: %w", err)
	}
	if snap.NodeID == "" {
		return Snapshot{}, fmt.Errorf("emitter document has no nodeId")
	}
	return snap, nil
}
