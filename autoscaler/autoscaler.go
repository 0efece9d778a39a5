// Package autoscaler is a decision loop on top of the ledger's public
// surface. It is deliberately just another authorized caller: it reads
// latest node states, applies thresholds, records every action as a
// scaling event under its own identity, and optionally executes the
// action against EKS. No decision logic lives in the ledger itself.
package autoscaler

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"fleetledger/client"
)

type Config struct {
	LedgerEndpoint string `yaml:"ledger_endpoint"`

	// Identity must hold a logger grant; it is recorded verbatim as the
	// initiator on every scaling event it writes.
	Identity string `yaml:"identity"`

	// Nodes are the node ids this loop watches.
	Nodes []string `yaml:"nodes"`

	HighThreshold   int `yaml:"high_threshold"`
	LowThreshold    int `yaml:"low_threshold"`
	CooldownSeconds int `yaml:"cooldown_seconds"`
	IntervalSeconds int `yaml:"interval_seconds"`

	// DryRun records events but never executes them.
	DryRun bool `yaml:"dry_run"`

	AWS AWSConfig `yaml:"aws"`
}

type AWSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	ClusterName string `yaml:"cluster_name"`
	Nodegroup   string `yaml:"nodegroup"`
	Kubeconfig  string `yaml:"kubeconfig"`
}

func LoadConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse autoscaler config %s: %w", file, err)
	}

	if cfg.LedgerEndpoint == "" {
		return nil, fmt.Errorf("autoscaler config %s: ledger_endpoint is required", file)
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("autoscaler config %s: identity is required", file)
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("autoscaler config %s: nodes is required", file)
	}
	if cfg.HighThreshold == 0 {
		cfg.HighThreshold = 80
	}
	if cfg.LowThreshold == 0 {
		cfg.LowThreshold = 20
	}
	if cfg.CooldownSeconds == 0 {
		cfg.CooldownSeconds = 300
	}
	if cfg.IntervalSeconds == 0 {
		cfg.IntervalSeconds = 60
	}
	return &cfg, nil
}

// Executor carries a decided action out against the infrastructure.
type Executor interface {
	ScaleUp(ctx context.Context, delta int) error
	ScaleDown(ctx context.Context, nodeID string) error
}

type Autoscaler struct {
	cfg           *Config
	api           *client.Client
	exec          Executor
	lastScaleDown time.Time
	now           func() time.Time
}

// New builds the loop. exec may be nil, in which case actions are only
// recorded on the ledger; a separate system is expected to execute them.
func New(cfg *Config, exec Executor) *Autoscaler {
	return &Autoscaler{
		cfg:  cfg,
		api:  client.New(cfg.LedgerEndpoint, cfg.Identity),
		exec: exec,
		now:  time.Now,
	}
}

// Run evaluates on an interval until ctx is cancelled.
func (a *Autoscaler) Run(ctx context.Context) error {
	klog.Infof("Autoscaler started: nodes=%d high=%d%% low=%d%% dry-run=%v",
		len(a.cfg.Nodes), a.cfg.HighThreshold, a.cfg.LowThreshold, a.cfg.DryRun)

	ticker := time.NewTicker(time.Duration(a.cfg.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			klog.Info("Autoscaler shutting down")
			return nil
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				klog.Errorf("Autoscaler cycle failed: %v", err)
			}
		}
	}
}

// RunOnce evaluates one cycle: average CPU over watched nodes that have
// reported, then scale up, scale down (outside cooldown), or nothing.
func (a *Autoscaler) RunOnce(ctx context.Context) error {
	avg, highest, lowest, reported, err := a.observe()
	if err != nil {
		return err
	}
	if reported == 0 {
		klog.V(2).Info("No watched node has reported yet, skipping cycle")
		return nil
	}

	switch {
	case avg > float64(a.cfg.HighThreshold):
		reason := fmt.Sprintf("average cpu %.1f%% above high threshold %d%%", avg, a.cfg.HighThreshold)
		return a.act(ctx, "scale_up", highest, reason)

	case avg < float64(a.cfg.LowThreshold):
		if a.now().Sub(a.lastScaleDown) < time.Duration(a.cfg.CooldownSeconds)*time.Second {
			klog.V(2).Info("Scale down suppressed by cooldown")
			return nil
		}
		reason := fmt.Sprintf("average cpu %.1f%% below low threshold %d%%", avg, a.cfg.LowThreshold)
		if err := a.act(ctx, "scale_down", lowest, reason); err != nil {
			return err
		}
		a.lastScaleDown = a.now()
		return nil
	}
	return nil
}

// observe reads latest state for every watched node. Nodes that never
// reported come back as zero records and are excluded from the average.
func (a *Autoscaler) observe() (avg float64, highest, lowest string, reported int, err error) {
	var total, highestCPU, lowestCPU float64

	for _, nodeID := range a.cfg.Nodes {
		rec, err := a.api.Latest(nodeID)
		if err != nil {
			return 0, "", "", 0, fmt.Errorf("latest state for %s: %w", nodeID, err)
		}
		if rec.NodeID == "" {
			continue
		}
		reported++
		total += rec.CPULoadPercent
		if highest == "" || rec.CPULoadPercent > highestCPU {
			highest, highestCPU = rec.NodeID, rec.CPULoadPercent
		}
		if lowest == "" || rec.CPULoadPercent < lowestCPU {
			lowest, lowestCPU = rec.NodeID, rec.CPULoadPercent
		}
	}
	if reported > 0 {
		avg = total / float64(reported)
	}
	return avg, highest, lowest, reported, nil
}

// act records the event first, then executes. The ledger entry is the
// audit trail; an execution failure after a committed event is itself
// worth having on record, so the order is deliberate.
func (a *Autoscaler) act(ctx context.Context, action, nodeID, reason string) error {
	if _, err := a.api.AppendScalingEvent(nodeID, action, reason); err != nil {
		return fmt.Errorf("record %s for %s: %w", action, nodeID, err)
	}
	klog.Infof("Recorded %s for node %s: %s", action, nodeID, reason)

	if a.cfg.DryRun || a.exec == nil {
		return nil
	}

	switch action {
	case "scale_up":
		return a.exec.ScaleUp(ctx, 1)
	case "scale_down":
		return a.exec.ScaleDown(ctx, nodeID)
	}
	return nil
}
