package infra

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// Destroy tears down every managed resource in reverse dependency order.
// Missing resources are skipped; other failures are logged and teardown
// continues so a partially-deleted stack can be destroyed again.
func (c *Converger) Destroy(ctx context.Context) error {
	prefix := c.cfg.Prefix()

	c.destroyService(ctx, prefix)
	c.destroyLoadBalancer(ctx, prefix)
	c.destroyCluster(ctx, prefix)
	c.destroyLogGroup(ctx, prefix)
	c.destroyRoles(ctx, prefix)
	c.destroyNetwork(ctx, prefix)

	c.log.Info().Str("stack", prefix).Msg("destroy complete")
	return nil
}

func (c *Converger) destroyService(ctx context.Context, prefix string) {
	cluster := prefix + "-cluster"
	service := prefix + "-service"

	_, err := c.aws.ECS.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      aws.String(cluster),
		Service:      aws.String(service),
		DesiredCount: aws.Int32(0),
	})
	if err != nil && !isNotFound(err) {
		c.log.Warn().Err(err).Str("service", service).Msg("scale to zero failed")
	}

	_, err = c.aws.ECS.DeleteService(ctx, &ecs.DeleteServiceInput{
		Cluster: aws.String(cluster),
		Service: aws.String(service),
		Force:   aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		c.log.Warn().Err(err).Str("service", service).Msg("delete service failed")
	}
}

func (c *Converger) destroyLoadBalancer(ctx context.Context, prefix string) {
	albs, err := c.aws.ELB.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Names: []string{prefix + "-alb"},
	})
	if err == nil && len(albs.LoadBalancers) > 0 {
		arn := aws.ToString(albs.LoadBalancers[0].LoadBalancerArn)

		listeners, err := c.aws.ELB.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
			LoadBalancerArn: aws.String(arn),
		})
		if err == nil {
			for _, l := range listeners.Listeners {
				_, _ = c.aws.ELB.DeleteListener(ctx, &elbv2.DeleteListenerInput{
					ListenerArn: l.ListenerArn,
				})
			}
		}

		_, err = c.aws.ELB.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{
			LoadBalancerArn: aws.String(arn),
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("delete load balancer failed")
		}
	}

	tgs, err := c.aws.ELB.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		Names: []string{prefix + "-tg"},
	})
	if err == nil && len(tgs.TargetGroups) > 0 {
		_, err = c.aws.ELB.DeleteTargetGroup(ctx, &elbv2.DeleteTargetGroupInput{
			TargetGroupArn: tgs.TargetGroups[0].TargetGroupArn,
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("delete target group failed")
		}
	}
}

func (c *Converger) destroyCluster(ctx context.Context, prefix string) {
	_, err := c.aws.ECS.DeleteCluster(ctx, &ecs.DeleteClusterInput{
		Cluster: aws.String(prefix + "-cluster"),
	})
	if err != nil && !isNotFound(err) {
		c.log.Warn().Err(err).Msg("delete cluster failed")
	}
}

func (c *Converger) destroyLogGroup(ctx context.Context, prefix string) {
	_, err := c.aws.CloudWatch.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String("/" + prefix),
	})
	if err != nil && !isNotFound(err) {
		c.log.Warn().Err(err).Msg("delete log group failed")
	}
}

func (c *Converger) destroyRoles(ctx context.Context, prefix string) {
	_, _ = c.aws.IAM.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  aws.String(prefix + "-execution-role"),
		PolicyArn: aws.String(executionRolePolicyARN),
	})
	for _, name := range []string{prefix + "-execution-role", prefix + "-task-role"} {
		_, err := c.aws.IAM.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
		if err != nil && !isNotFound(err) {
			c.log.Warn().Err(err).Str("role", name).Msg("delete role failed")
		}
	}
}

func (c *Converger) destroyNetwork(ctx context.Context, prefix string) {
	vpcs, err := c.aws.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: nameFilter(prefix + "-vpc")})
	if err != nil || len(vpcs.Vpcs) == 0 {
		return
	}
	vpcID := aws.ToString(vpcs.Vpcs[0].VpcId)

	sgs, err := c.aws.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: managedFilter(vpcID),
	})
	if err == nil {
		for _, sg := range sgs.SecurityGroups {
			_, err := c.aws.EC2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
				GroupId: sg.GroupId,
			})
			if err != nil && !isNotFound(err) {
				c.log.Warn().Err(err).Str("sg", aws.ToString(sg.GroupId)).Msg("delete security group failed")
			}
		}
	}

	rts, err := c.aws.EC2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: nameFilter(prefix + "-public-rt"),
	})
	if err == nil {
		for _, rt := range rts.RouteTables {
			for _, assoc := range rt.Associations {
				if !aws.ToBool(assoc.Main) {
					_, _ = c.aws.EC2.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
						AssociationId: assoc.RouteTableAssociationId,
					})
				}
			}
			_, _ = c.aws.EC2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{
				RouteTableId: rt.RouteTableId,
			})
		}
	}

	subnets, err := c.aws.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: managedFilter(vpcID),
	})
	if err == nil {
		for _, s := range subnets.Subnets {
			_, err := c.aws.EC2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: s.SubnetId})
			if err != nil && !isNotFound(err) {
				c.log.Warn().Err(err).Str("subnet", aws.ToString(s.SubnetId)).Msg("delete subnet failed")
			}
		}
	}

	igws, err := c.aws.EC2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: nameFilter(prefix + "-igw"),
	})
	if err == nil {
		for _, igw := range igws.InternetGateways {
			_, _ = c.aws.EC2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
				InternetGatewayId: igw.InternetGatewayId,
				VpcId:             aws.String(vpcID),
			})
			_, _ = c.aws.EC2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
				InternetGatewayId: igw.InternetGatewayId,
			})
		}
	}

	_, err = c.aws.EC2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(vpcID)})
	if err != nil && !isNotFound(err) {
		c.log.Warn().Err(err).Str("vpc", vpcID).Msg("delete vpc failed")
	}
}
