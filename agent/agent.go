// Package agent bridges node telemetry emitters to the ledger: it polls a
// collector on an interval and appends every snapshot through the write
// API under its configured identity. The ledger does not call emitters
// itself; the agent is the one external process that does.
package agent

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"fleetledger/agent/collector"
	"fleetledger/client"
	"fleetledger/k8s"
	"fleetledger/ledger"
)

type Config struct {
	// LedgerEndpoint is the base URL of the ledger server.
	LedgerEndpoint string `yaml:"ledger_endpoint"`

	// Identity must hold an active logger grant on the ledger.
	Identity string `yaml:"identity"`

	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// Mode selects the collector: "http" (default) or "kubernetes".
	Mode string `yaml:"mode"`

	// NodeEndpoints are emitter base URLs, http mode only.
	NodeEndpoints []string `yaml:"node_endpoints"`

	// Kubeconfig and AlertThresholdPercent apply to kubernetes mode.
	Kubeconfig            string  `yaml:"kubeconfig"`
	AlertThresholdPercent float64 `yaml:"alert_threshold_percent"`
}

func LoadConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse agent config %s: %w", file, err)
	}

	if cfg.LedgerEndpoint == "" {
		return nil, fmt.Errorf("agent config %s: ledger_endpoint is required", file)
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("agent config %s: identity is required", file)
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 60
	}
	if cfg.Mode == "" {
		cfg.Mode = "http"
	}
	if cfg.Mode == "http" && len(cfg.NodeEndpoints) == 0 {
		return nil, fmt.Errorf("agent config %s: node_endpoints is required in http mode", file)
	}
	return &cfg, nil
}

type Agent struct {
	cfg *Config
	api *client.Client
	col collector.Collector
}

func New(cfg *Config) (*Agent, error) {
	var col collector.Collector
	switch cfg.Mode {
	case "http":
		col = collector.NewHTTPCollector(cfg.NodeEndpoints)
	case "kubernetes":
		core, err := k8s.NewClient(cfg.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("kubernetes client: %w", err)
		}
		metrics, err := k8s.NewMetricsClient(cfg.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("kubernetes metrics client: %w", err)
		}
		col = collector.NewKubeCollector(core, metrics, cfg.AlertThresholdPercent)
	default:
		return nil, fmt.Errorf("unknown agent mode %q", cfg.Mode)
	}

	return &Agent{
		cfg: cfg,
		api: client.New(cfg.LedgerEndpoint, cfg.Identity),
		col: col,
	}, nil
}

// Run polls until ctx is cancelled. The first collection happens
// immediately, not one interval in.
func (a *Agent) Run(ctx context.Context) error {
	klog.Infof("Agent started: mode=%s interval=%ds ledger=%s", a.cfg.Mode, a.cfg.PollIntervalSeconds, a.cfg.LedgerEndpoint)

	ticker := time.NewTicker(time.Duration(a.cfg.PollIntervalSeconds) * time.Second)
	defer ticker.Stop()

	a.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			klog.Info("Agent shutting down")
			return nil
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

// pollOnce collects one round of snapshots and appends each to the
// ledger. Per-node failures are logged and skipped; the loop survives.
func (a *Agent) pollOnce(ctx context.Context) {
	snapshots, err := a.col.Collect(ctx)
	if err != nil {
		klog.Errorf("Collection cycle failed: %v", err)
		return
	}

	for _, snap := range snapshots {
		status, err := ledger.ParseStatus(snap.Status)
		if err != nil {
			klog.Warningf("Node %s reported %v, recording as Normal", snap.NodeID, err)
			status = ledger.StatusNormal
		}

		count, err := a.api.AppendMetrics(snap.NodeID, snap.MemoryUsageMB, snap.CPULoadPercent, snap.AllocatedMemoryMB, status)
		if err != nil {
			klog.Errorf("Append for node %s failed: %v", snap.NodeID, err)
			continue
		}
		klog.V(2).Infof("Appended metrics for %s (ledger count %d)", snap.NodeID, count)
	}
}
