package autoscaler

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/eks/types"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"fleetledger/k8s"
)

// EKSExecutor carries scaling actions out against a managed nodegroup:
// scale up bumps the nodegroup's desired size, scale down terminates the
// chosen node's instance through its autoscaling group.
type EKSExecutor struct {
	cfg       AWSConfig
	eksClient *eks.Client
	asgClient *autoscaling.Client
	k8sClient kubernetes.Interface
}

func NewEKSExecutor(ctx context.Context, cfg AWSConfig) (*EKSExecutor, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	k8sClient, err := k8s.NewClient(cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}

	return &EKSExecutor{
		cfg:       cfg,
		eksClient: eks.NewFromConfig(awsCfg),
		asgClient: autoscaling.NewFromConfig(awsCfg),
		k8sClient: k8sClient,
	}, nil
}

func (e *EKSExecutor) ScaleUp(ctx context.Context, delta int) error {
	desc, err := e.eksClient.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   aws.String(e.cfg.ClusterName),
		NodegroupName: aws.String(e.cfg.Nodegroup),
	})
	if err != nil {
		return fmt.Errorf("describe nodegroup %s: %w", e.cfg.Nodegroup, err)
	}
	if desc.Nodegroup == nil || desc.Nodegroup.ScalingConfig == nil || desc.Nodegroup.ScalingConfig.DesiredSize == nil {
		return fmt.Errorf("nodegroup %s has no scaling config", e.cfg.Nodegroup)
	}

	desired := *desc.Nodegroup.ScalingConfig.DesiredSize + int32(delta)
	if desc.Nodegroup.ScalingConfig.MaxSize != nil && desired > *desc.Nodegroup.ScalingConfig.MaxSize {
		return fmt.Errorf("nodegroup %s already at max size %d", e.cfg.Nodegroup, *desc.Nodegroup.ScalingConfig.MaxSize)
	}

	_, err = e.eksClient.UpdateNodegroupConfig(ctx, &eks.UpdateNodegroupConfigInput{
		ClusterName:   aws.String(e.cfg.ClusterName),
		NodegroupName: aws.String(e.cfg.Nodegroup),
		ScalingConfig: &types.NodegroupScalingConfig{
			DesiredSize: aws.Int32(desired),
		},
	})
	if err != nil {
		return fmt.Errorf("update nodegroup %s: %w", e.cfg.Nodegroup, err)
	}
	klog.Infof("Nodegroup %s desired size set to %d", e.cfg.Nodegroup, desired)
	return nil
}

func (e *EKSExecutor) ScaleDown(ctx context.Context, nodeID string) error {
	instanceID, err := e.instanceID(ctx, nodeID)
	if err != nil {
		return err
	}

	_, err = e.asgClient.TerminateInstanceInAutoScalingGroup(ctx, &autoscaling.TerminateInstanceInAutoScalingGroupInput{
		InstanceId:                     aws.String(instanceID),
		ShouldDecrementDesiredCapacity: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("terminate instance %s: %w", instanceID, err)
	}
	klog.Infof("Terminated instance %s for node %s", instanceID, nodeID)
	return nil
}

// instanceID resolves a node name to its EC2 instance id via the node's
// providerID (aws:///<az>/<instance-id>).
func (e *EKSExecutor) instanceID(ctx context.Context, nodeID string) (string, error) {
	node, err := e.k8sClient.CoreV1().Nodes().Get(ctx, nodeID, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get node %s: %w", nodeID, err)
	}
	if node.Spec.ProviderID == "" {
		return "", fmt.Errorf("node %s has no providerID", nodeID)
	}
	parts := strings.Split(node.Spec.ProviderID, "/")
	return parts[len(parts)-1], nil
}
