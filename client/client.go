// Package client is the typed HTTP client for the ledger API. It maps the
// API's status codes back onto the ledger's error kinds, so a caller sees
// the same errors whether it holds the ledger in-process or talks to a
// remote server.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fleetledger/ledger"
)

// identityHeader mirrors the server's identity header without importing
// the server package.
const identityHeader = "X-Ledger-Identity"

// Client carries one caller identity; every write it issues is attributed
// to that identity by the server.
type Client struct {
	baseURL  string
	identity string
	httpc    *http.Client
}

func New(baseURL, identity string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
}

type countResponse struct {
	Count int `json:"count"`
}

// AppendMetrics records a telemetry observation and returns the new
// metrics count.
func (c *Client) AppendMetrics(nodeID string, memoryMB, cpuPercent, allocatedMB float64, status ledger.NodeStatus) (int, error) {
	body := map[string]any{
		"node_id":             nodeID,
		"memory_usage_mb":     memoryMB,
		"cpu_load_percent":    cpuPercent,
		"allocated_memory_mb": allocatedMB,
		"status":              status,
	}
	var out countResponse
	if err := c.post("/api/v1/metrics", body, &out); err != nil {
		return 0, fmt.Errorf("append metrics for %s: %w", nodeID, err)
	}
	return out.Count, nil
}

// AppendScalingEvent records a scaling action and returns the new event
// count. The client's identity becomes the event's initiator.
func (c *Client) AppendScalingEvent(nodeID, action, reason string) (int, error) {
	body := map[string]any{
		"node_id": nodeID,
		"action":  action,
		"reason":  reason,
	}
	var out countResponse
	if err := c.post("/api/v1/scaling-events", body, &out); err != nil {
		return 0, fmt.Errorf("append scaling event for %s: %w", nodeID, err)
	}
	return out.Count, nil
}

// GrantLogger authorizes identity for writes. Admin-only.
func (c *Client) GrantLogger(identity string) error {
	return c.post("/api/v1/loggers/grant", map[string]string{"identity": identity}, nil)
}

// RevokeLogger withdraws a grant. Admin-only.
func (c *Client) RevokeLogger(identity string) error {
	return c.post("/api/v1/loggers/revoke", map[string]string{"identity": identity}, nil)
}

// Latest fetches the latest-state entry for nodeID; a node that never
// reported yields the zero record.
func (c *Client) Latest(nodeID string) (ledger.MetricsRecord, error) {
	var rec ledger.MetricsRecord
	err := c.get("/api/v1/nodes/"+url.PathEscape(nodeID)+"/latest", &rec)
	return rec, err
}

func (c *Client) MetricsCount() (int, error) {
	var out countResponse
	err := c.get("/api/v1/metrics/count", &out)
	return out.Count, err
}

func (c *Client) ScalingEventsCount() (int, error) {
	var out countResponse
	err := c.get("/api/v1/scaling-events/count", &out)
	return out.Count, err
}

// QueryMetricsHistory fetches the records for nodeID inside the window
// [start, start+count) of the metrics ledger.
func (c *Client) QueryMetricsHistory(nodeID string, start, count int) ([]ledger.MetricsRecord, error) {
	q := url.Values{}
	q.Set("node", nodeID)
	q.Set("start", strconv.Itoa(start))
	q.Set("count", strconv.Itoa(count))

	var records []ledger.MetricsRecord
	if err := c.get("/api/v1/metrics/history?"+q.Encode(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identityHeader, c.identity)
	return c.do(req, out)
}

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		switch resp.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w", strings.TrimSpace(string(msg)), ledger.ErrNotAuthorized)
		case http.StatusRequestedRangeNotSatisfiable:
			return fmt.Errorf("%s: %w", strings.TrimSpace(string(msg)), ledger.ErrOutOfRange)
		default:
			return fmt.Errorf("ledger API %s: status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ledger API response: %w", err)
	}
	return nil
}
