package collector

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

const mib = 1024 * 1024

// KubeCollector derives snapshots for cluster nodes from the core API
// (allocatable) and metrics.k8s.io (usage). Status is Normal unless CPU
// load reaches alertThreshold percent.
type KubeCollector struct {
	core           kubernetes.Interface
	metrics        metricsclient.Interface
	alertThreshold float64
}

func NewKubeCollector(core kubernetes.Interface, metrics metricsclient.Interface, alertThreshold float64) *KubeCollector {
	if alertThreshold <= 0 {
		alertThreshold = 90
	}
	return &KubeCollector{core: core, metrics: metrics, alertThreshold: alertThreshold}
}

func (c *KubeCollector) Collect(ctx context.Context) ([]Snapshot, error) {
	nodes, err := c.core.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	allocatable := make(map[string]struct{ cpuMilli, memBytes int64 }, len(nodes.Items))
	for _, node := range nodes.Items {
		allocatable[node.Name] = struct{ cpuMilli, memBytes int64 }{
			cpuMilli: node.Status.Allocatable.Cpu().MilliValue(),
			memBytes: node.Status.Allocatable.Memory().Value(),
		}
	}

	usages, err := c.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list node metrics: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(usages.Items))
	for _, m := range usages.Items {
		alloc, ok := allocatable[m.Name]
		if !ok {
			klog.V(2).Infof("Node %s has usage but no allocatable, skipping", m.Name)
			continue
		}

		cpuPercent := 0.0
		if alloc.cpuMilli > 0 {
			cpuPercent = float64(m.Usage.Cpu().MilliValue()) / float64(alloc.cpuMilli) * 100
		}

		status := "Normal"
		if cpuPercent >= c.alertThreshold {
			status = "Alert"
		}

		snapshots = append(snapshots, Snapshot{
			NodeID:            m.Name,
			MemoryUsageMB:     float64(m.Usage.Memory().Value()) / mib,
			CPULoadPercent:    cpuPercent,
			AllocatedMemoryMB: float64(alloc.memBytes) / mib,
			Status:            status,
		})
	}
	return snapshots, nil
}
