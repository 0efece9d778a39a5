package autoscaler

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/central/config"
	"fleetledger/central/server"
	"fleetledger/client"
	"fleetledger/ledger"
)

const adminIdentity = "ops-admin"

type fakeExecutor struct {
	ups   int
	downs []string
}

func (f *fakeExecutor) ScaleUp(ctx context.Context, delta int) error {
	f.ups += delta
	return nil
}

func (f *fakeExecutor) ScaleDown(ctx context.Context, nodeID string) error {
	f.downs = append(f.downs, nodeID)
	return nil
}

func newLoop(t *testing.T, nodes []string, dryRun bool) (*Autoscaler, *fakeExecutor, *ledger.Ledger) {
	t.Helper()
	srvCfg := &config.Config{}
	srvCfg.AdminIdentity = adminIdentity
	led := ledger.New(adminIdentity)
	require.NoError(t, led.GrantLogger(adminIdentity, "autoscaler"))
	ts := httptest.NewServer(server.New(srvCfg, led).Handler())
	t.Cleanup(ts.Close)

	cfg := &Config{
		LedgerEndpoint:  ts.URL,
		Identity:        "autoscaler",
		Nodes:           nodes,
		HighThreshold:   80,
		LowThreshold:    20,
		CooldownSeconds: 300,
		DryRun:          dryRun,
	}
	exec := &fakeExecutor{}
	a := &Autoscaler{cfg: cfg, api: client.New(ts.URL, "autoscaler"), exec: exec, now: time.Now}
	return a, exec, led
}

func seed(t *testing.T, led *ledger.Ledger, node string, cpu float64) {
	t.Helper()
	_, err := led.AppendMetrics(adminIdentity, node, 512, cpu, 1024, ledger.StatusNormal)
	require.NoError(t, err)
}

func TestRunOnceScalesUpOnHighAverage(t *testing.T) {
	a, exec, led := newLoop(t, []string{"node-a", "node-b"}, false)
	seed(t, led, "node-a", 95)
	seed(t, led, "node-b", 90)

	require.NoError(t, a.RunOnce(context.Background()))

	assert.Equal(t, 1, led.ScalingEventsCount())
	ev, err := led.ScalingEventAt(0)
	require.NoError(t, err)
	assert.Equal(t, "scale_up", ev.Action)
	assert.Equal(t, "node-a", ev.NodeID) // the hottest node
	assert.Equal(t, "autoscaler", ev.Initiator)
	assert.Contains(t, ev.Reason, "above high threshold")

	assert.Equal(t, 1, exec.ups)
	assert.Equal(t, ledger.StatusScaling, led.Latest("node-a").Status)
}

func TestRunOnceScalesDownOnLowAverageWithCooldown(t *testing.T) {
	a, exec, led := newLoop(t, []string{"node-a", "node-b"}, false)
	seed(t, led, "node-a", 5)
	seed(t, led, "node-b", 10)

	base := time.Now()
	a.now = func() time.Time { return base }

	require.NoError(t, a.RunOnce(context.Background()))
	assert.Equal(t, []string{"node-a"}, exec.downs) // the coldest node
	assert.Equal(t, 1, led.ScalingEventsCount())

	// Within cooldown: no second action.
	a.now = func() time.Time { return base.Add(10 * time.Second) }
	require.NoError(t, a.RunOnce(context.Background()))
	assert.Equal(t, 1, led.ScalingEventsCount())

	// Past cooldown: acts again.
	a.now = func() time.Time { return base.Add(301 * time.Second) }
	require.NoError(t, a.RunOnce(context.Background()))
	assert.Equal(t, 2, led.ScalingEventsCount())
	assert.Len(t, exec.downs, 2)
}

func TestRunOnceScaleDownPicksNegativeCPUNode(t *testing.T) {
	a, exec, led := newLoop(t, []string{"node-a", "node-b"}, false)
	// The ledger stores values verbatim, so a broken emitter can report
	// a negative load. That node is still the coldest.
	seed(t, led, "node-a", -5)
	seed(t, led, "node-b", 10)

	require.NoError(t, a.RunOnce(context.Background()))
	assert.Equal(t, []string{"node-a"}, exec.downs)
}

func TestRunOnceDoesNothingInBand(t *testing.T) {
	a, exec, led := newLoop(t, []string{"node-a"}, false)
	seed(t, led, "node-a", 50)

	require.NoError(t, a.RunOnce(context.Background()))
	assert.Zero(t, led.ScalingEventsCount())
	assert.Zero(t, exec.ups)
	assert.Empty(t, exec.downs)
}

func TestRunOnceSkipsWhenNoNodeReported(t *testing.T) {
	a, exec, led := newLoop(t, []string{"silent-node"}, false)

	require.NoError(t, a.RunOnce(context.Background()))
	assert.Zero(t, led.ScalingEventsCount())
	assert.Zero(t, exec.ups)
}

func TestRunOnceIgnoresUnreportedNodesInAverage(t *testing.T) {
	a, _, led := newLoop(t, []string{"node-a", "silent-node"}, false)
	seed(t, led, "node-a", 95)

	// silent-node's zero record must not drag the average under the
	// threshold.
	require.NoError(t, a.RunOnce(context.Background()))
	assert.Equal(t, 1, led.ScalingEventsCount())
}

func TestDryRunRecordsButDoesNotExecute(t *testing.T) {
	a, exec, led := newLoop(t, []string{"node-a"}, true)
	seed(t, led, "node-a", 95)

	require.NoError(t, a.RunOnce(context.Background()))
	assert.Equal(t, 1, led.ScalingEventsCount())
	assert.Zero(t, exec.ups)
}

func TestLoadConfigDefaultsAndValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoscaler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger_endpoint: http://localhost:8460
identity: autoscaler
nodes:
  - web-node-1
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.HighThreshold)
	assert.Equal(t, 20, cfg.LowThreshold)
	assert.Equal(t, 300, cfg.CooldownSeconds)
	assert.Equal(t, 60, cfg.IntervalSeconds)

	_, err = LoadConfig(path + ".missing")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
ledger_endpoint: http://localhost:8460
identity: autoscaler
`), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err, "nodes list is required")
}

func TestRunOnceFailsWhenRevoked(t *testing.T) {
	a, _, led := newLoop(t, []string{"node-a"}, false)
	seed(t, led, "node-a", 95)
	require.NoError(t, led.RevokeLogger(adminIdentity, "autoscaler"))

	err := a.RunOnce(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)
	assert.Zero(t, led.ScalingEventsCount())
}
