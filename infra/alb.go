package infra

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// Health check timing for the target group. The grace period on the ECS
// service must outlast interval*threshold or tasks get culled mid-boot.
const (
	healthCheckInterval  = 15
	healthyThreshold     = 2
	unhealthyThreshold   = 3
	deregistrationDelayS = "30"
)

// LoadBalancer holds the converged ALB resources.
type LoadBalancer struct {
	ARN            string
	DNSName        string
	TargetGroupARN string
	ListenerARN    string
}

// ensureLoadBalancer converges the ALB, its IP-mode target group with the
// health check contract, and the HTTP listener.
func (c *Converger) ensureLoadBalancer(ctx context.Context, vpcID string, subnetIDs []string, albSG string) (*LoadBalancer, error) {
	prefix := c.cfg.Prefix()
	lb := &LoadBalancer{}

	arn, dns, err := c.ensureALB(ctx, prefix+"-alb", subnetIDs, albSG)
	if err != nil {
		return nil, fmt.Errorf("ensuring alb: %w", err)
	}
	lb.ARN = arn
	lb.DNSName = dns

	tgARN, err := c.ensureTargetGroup(ctx, prefix+"-tg", vpcID)
	if err != nil {
		return nil, fmt.Errorf("ensuring target group: %w", err)
	}
	lb.TargetGroupARN = tgARN

	listenerARN, err := c.ensureListener(ctx, arn, tgARN)
	if err != nil {
		return nil, fmt.Errorf("ensuring listener: %w", err)
	}
	lb.ListenerARN = listenerARN

	return lb, nil
}

func (c *Converger) ensureALB(ctx context.Context, name string, subnetIDs []string, sgID string) (arn, dns string, err error) {
	out, err := c.aws.ELB.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Names: []string{name},
	})
	if err == nil && len(out.LoadBalancers) > 0 {
		existing := out.LoadBalancers[0]
		return aws.ToString(existing.LoadBalancerArn), aws.ToString(existing.DNSName), nil
	}
	if err != nil && apiErrorCode(err) != "LoadBalancerNotFound" {
		return "", "", err
	}

	created, err := c.aws.ELB.CreateLoadBalancer(ctx, &elbv2.CreateLoadBalancerInput{
		Name:           aws.String(name),
		Type:           elbtypes.LoadBalancerTypeEnumApplication,
		Scheme:         elbtypes.LoadBalancerSchemeEnumInternetFacing,
		IpAddressType:  elbtypes.IpAddressTypeIpv4,
		Subnets:        subnetIDs,
		SecurityGroups: []string{sgID},
		Tags:           c.elbTags(name),
	})
	if err != nil {
		return "", "", err
	}
	created0 := created.LoadBalancers[0]
	arn = aws.ToString(created0.LoadBalancerArn)
	dns = aws.ToString(created0.DNSName)
	c.log.Info().Str("alb", name).Str("dns", dns).Msg("created load balancer")
	return arn, dns, nil
}

func (c *Converger) ensureTargetGroup(ctx context.Context, name, vpcID string) (string, error) {
	out, err := c.aws.ELB.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		Names: []string{name},
	})
	if err == nil && len(out.TargetGroups) > 0 {
		return aws.ToString(out.TargetGroups[0].TargetGroupArn), nil
	}
	if err != nil && apiErrorCode(err) != "TargetGroupNotFound" {
		return "", err
	}

	created, err := c.aws.ELB.CreateTargetGroup(ctx, &elbv2.CreateTargetGroupInput{
		Name:                       aws.String(name),
		VpcId:                      aws.String(vpcID),
		Protocol:                   elbtypes.ProtocolEnumHttp,
		Port:                       aws.Int32(int32(c.cfg.ServicePort)),
		TargetType:                 elbtypes.TargetTypeEnumIp,
		HealthCheckProtocol:        elbtypes.ProtocolEnumHttp,
		HealthCheckPath:            aws.String(c.cfg.HealthPath),
		HealthCheckIntervalSeconds: aws.Int32(healthCheckInterval),
		HealthyThresholdCount:      aws.Int32(healthyThreshold),
		UnhealthyThresholdCount:    aws.Int32(unhealthyThreshold),
		Matcher:                    &elbtypes.Matcher{HttpCode: aws.String("200")},
		Tags:                       c.elbTags(name),
	})
	if err != nil {
		return "", err
	}
	tgARN := aws.ToString(created.TargetGroups[0].TargetGroupArn)

	// Speed up rolling replacement: default deregistration delay is 300s.
	_, err = c.aws.ELB.ModifyTargetGroupAttributes(ctx, &elbv2.ModifyTargetGroupAttributesInput{
		TargetGroupArn: aws.String(tgARN),
		Attributes: []elbtypes.TargetGroupAttribute{
			{Key: aws.String("deregistration_delay.timeout_seconds"), Value: aws.String(deregistrationDelayS)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("setting deregistration delay: %w", err)
	}

	c.log.Info().Str("target-group", name).Msg("created target group")
	return tgARN, nil
}

func (c *Converger) ensureListener(ctx context.Context, albARN, tgARN string) (string, error) {
	out, err := c.aws.ELB.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
		LoadBalancerArn: aws.String(albARN),
	})
	if err != nil {
		return "", err
	}
	for _, l := range out.Listeners {
		if aws.ToInt32(l.Port) == 80 {
			return aws.ToString(l.ListenerArn), nil
		}
	}

	created, err := c.aws.ELB.CreateListener(ctx, &elbv2.CreateListenerInput{
		LoadBalancerArn: aws.String(albARN),
		Protocol:        elbtypes.ProtocolEnumHttp,
		Port:            aws.Int32(80),
		DefaultActions: []elbtypes.Action{
			{Type: elbtypes.ActionTypeEnumForward, TargetGroupArn: aws.String(tgARN)},
		},
	})
	if err != nil {
		return "", err
	}
	c.log.Info().Msg("created listener :80")
	return aws.ToString(created.Listeners[0].ListenerArn), nil
}

func (c *Converger) elbTags(name string) []elbtypes.Tag {
	return []elbtypes.Tag{
		{Key: aws.String("Name"), Value: aws.String(name)},
		{Key: aws.String(ManagedByKey), Value: aws.String(ManagedByValue)},
		{Key: aws.String(EnvKey), Value: aws.String(c.cfg.Env)},
	}
}

// TargetHealth summarizes one registered target for status output.
type TargetHealth struct {
	ID     string
	Port   int32
	State  string
	Reason string
}

// DescribeTargetHealth lists the health of every target in the group.
func (c *Converger) DescribeTargetHealth(ctx context.Context, tgARN string) ([]TargetHealth, error) {
	out, err := c.aws.ELB.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(tgARN),
	})
	if err != nil {
		return nil, err
	}
	var targets []TargetHealth
	for _, d := range out.TargetHealthDescriptions {
		th := TargetHealth{
			ID:    aws.ToString(d.Target.Id),
			Port:  aws.ToInt32(d.Target.Port),
			State: string(d.TargetHealth.State),
		}
		if d.TargetHealth.Reason != "" {
			th.Reason = string(d.TargetHealth.Reason)
		}
		targets = append(targets, th)
	}
	return targets, nil
}
