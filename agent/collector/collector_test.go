package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmitter mimics a node telemetry emitter's /metrics document.
func fakeEmitter(t *testing.T, nodeID string, cpu float64) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"nodeId": "` + nodeID + `",
			"memoryUsage": 512.5,
			"cpuLoad": ` + jsonFloat(cpu) + `,
			"allocatedMemory": 1024,
			"status": "Normal",
			"timestamp": 1700000000.25
		}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func jsonFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestHTTPCollectorParsesEmitterDocument(t *testing.T) {
	emitter := fakeEmitter(t, "web-node-1", 35)

	col := NewHTTPCollector([]string{emitter.URL})
	snaps, err := col.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	assert.Equal(t, "web-node-1", snaps[0].NodeID)
	assert.Equal(t, 512.5, snaps[0].MemoryUsageMB)
	assert.Equal(t, 35.0, snaps[0].CPULoadPercent)
	assert.Equal(t, 1024.0, snaps[0].AllocatedMemoryMB)
	assert.Equal(t, "Normal", snaps[0].Status)
}

func TestHTTPCollectorSkipsUnreachableNodes(t *testing.T) {
	up := fakeEmitter(t, "web-node-1", 35)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	down.Close() // connection refused

	col := NewHTTPCollector([]string{down.URL, up.URL})
	snaps, err := col.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "web-node-1", snaps[0].NodeID)
}

func TestHTTPCollectorRejectsAnonymousDocument(t *testing.T) {
	anon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"memoryUsage": 1}`))
	}))
	t.Cleanup(anon.Close)

	col := NewHTTPCollector([]string{anon.URL})
	snaps, err := col.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
