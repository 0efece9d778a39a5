package notifier

import (
	"k8s.io/klog/v2"

	"fleetledger/ledger"
)

// Log writes every notification to the structured log. It is always
// subscribed, so the server log doubles as a human-readable commit trail.
type Log struct{}

func NewLog() *Log { return &Log{} }

func (Log) OnMetricsLogged(ev ledger.MetricsLogged) {
	klog.Infof("Metrics logged: node=%s status=%s ts=%d", ev.NodeID, ev.Status, ev.Timestamp)
}

func (Log) OnScalingActionPerformed(ev ledger.ScalingActionPerformed) {
	klog.Infof("Scaling action performed: node=%s action=%s ts=%d", ev.NodeID, ev.Action, ev.Timestamp)
}
