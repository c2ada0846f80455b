package infra

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// Lookup resolves the Outputs of an already-converged stack without creating
// anything. verify/status/rollback go through here so they never mutate.
func (c *Converger) Lookup(ctx context.Context) (*Outputs, error) {
	prefix := c.cfg.Prefix()
	out := &Outputs{
		ClusterName: prefix + "-cluster",
		LogGroup:    "/" + prefix,
	}

	vpcs, err := c.aws.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: nameFilter(prefix + "-vpc")})
	if err != nil {
		return nil, err
	}
	if len(vpcs.Vpcs) == 0 {
		return nil, fmt.Errorf("vpc %s-vpc not found; run `terra-rails up` first", prefix)
	}
	out.VPCID = aws.ToString(vpcs.Vpcs[0].VpcId)

	subnets, err := c.aws.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: managedFilter(out.VPCID),
	})
	if err != nil {
		return nil, err
	}
	for _, s := range subnets.Subnets {
		out.SubnetIDs = append(out.SubnetIDs, aws.ToString(s.SubnetId))
	}

	sgs, err := c.aws.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: nameFilter(prefix + "-service-sg"),
	})
	if err != nil {
		return nil, err
	}
	if len(sgs.SecurityGroups) > 0 {
		out.ServiceSGID = aws.ToString(sgs.SecurityGroups[0].GroupId)
	}

	albs, err := c.aws.ELB.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Names: []string{prefix + "-alb"},
	})
	if err != nil {
		return nil, fmt.Errorf("load balancer %s-alb not found; run `terra-rails up` first: %w", prefix, err)
	}
	out.ALBArn = aws.ToString(albs.LoadBalancers[0].LoadBalancerArn)
	out.ALBDNSName = aws.ToString(albs.LoadBalancers[0].DNSName)

	tgs, err := c.aws.ELB.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		Names: []string{prefix + "-tg"},
	})
	if err != nil {
		return nil, err
	}
	out.TargetGroupARN = aws.ToString(tgs.TargetGroups[0].TargetGroupArn)

	for _, r := range []struct {
		name string
		dst  *string
	}{
		{prefix + "-execution-role", &out.ExecutionRoleARN},
		{prefix + "-task-role", &out.TaskRoleARN},
	} {
		role, err := c.aws.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(r.name)})
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", r.name, err)
		}
		*r.dst = aws.ToString(role.Role.Arn)
	}

	out.ClusterARN = out.ClusterName // DescribeServices accepts the name
	return out, nil
}
