// Package infra converges AWS resources to the declared target state.
// Every ensure first looks up the resource it owns (by Name tag or by name)
// and only creates what is missing, so re-running convergence with an
// unchanged configuration produces no changes.
package infra

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/boskiv/terra-rails-aws/awsc"
	"github.com/boskiv/terra-rails-aws/config"
)

// Converger converges and tears down the deployment's AWS resources.
type Converger struct {
	aws *awsc.Clients
	cfg config.Config
	log zerolog.Logger
}

// NewConverger creates a Converger.
func NewConverger(clients *awsc.Clients, cfg config.Config, log zerolog.Logger) *Converger {
	return &Converger{aws: clients, cfg: cfg, log: log}
}

// Outputs are the identifiers later pipeline steps need.
type Outputs struct {
	VPCID            string
	SubnetIDs        []string
	ServiceSGID      string
	ALBArn           string
	ALBDNSName       string
	TargetGroupARN   string
	ClusterARN       string
	ClusterName      string
	LogGroup         string
	ExecutionRoleARN string
	TaskRoleARN      string
}

// Converge brings every managed resource to its target state, in dependency
// order: network, security groups, load balancer, IAM, logs, cluster.
func (c *Converger) Converge(ctx context.Context) (*Outputs, error) {
	net, err := c.ensureNetwork(ctx)
	if err != nil {
		return nil, err
	}

	sgs, err := c.ensureSecurityGroups(ctx, net.VPCID)
	if err != nil {
		return nil, err
	}

	lb, err := c.ensureLoadBalancer(ctx, net.VPCID, net.SubnetIDs, sgs.ALB)
	if err != nil {
		return nil, err
	}

	roles, err := c.ensureRoles(ctx)
	if err != nil {
		return nil, err
	}

	logGroup, err := c.ensureLogGroup(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensuring log group: %w", err)
	}

	clusterARN, err := c.ensureCluster(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensuring cluster: %w", err)
	}

	return &Outputs{
		VPCID:            net.VPCID,
		SubnetIDs:        net.SubnetIDs,
		ServiceSGID:      sgs.Service,
		ALBArn:           lb.ARN,
		ALBDNSName:       lb.DNSName,
		TargetGroupARN:   lb.TargetGroupARN,
		ClusterARN:       clusterARN,
		ClusterName:      c.cfg.Prefix() + "-cluster",
		LogGroup:         logGroup,
		ExecutionRoleARN: roles.ExecutionRoleARN,
		TaskRoleARN:      roles.TaskRoleARN,
	}, nil
}
