package infra

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// SecurityGroups holds the two converged security group IDs.
type SecurityGroups struct {
	ALB     string
	Service string
}

// ensureSecurityGroups converges the ALB security group (HTTP from anywhere)
// and the service security group (service port from the ALB group only).
func (c *Converger) ensureSecurityGroups(ctx context.Context, vpcID string) (*SecurityGroups, error) {
	prefix := c.cfg.Prefix()

	albSG, err := c.ensureSecurityGroup(ctx, vpcID, prefix+"-alb-sg", "ALB ingress")
	if err != nil {
		return nil, fmt.Errorf("ensuring alb security group: %w", err)
	}
	if err := c.authorizeIngress(ctx, albSG, 80, "", "0.0.0.0/0"); err != nil {
		return nil, fmt.Errorf("authorizing alb ingress: %w", err)
	}

	svcSG, err := c.ensureSecurityGroup(ctx, vpcID, prefix+"-service-sg", "service ingress from ALB")
	if err != nil {
		return nil, fmt.Errorf("ensuring service security group: %w", err)
	}
	if err := c.authorizeIngress(ctx, svcSG, c.cfg.ServicePort, albSG, ""); err != nil {
		return nil, fmt.Errorf("authorizing service ingress: %w", err)
	}

	return &SecurityGroups{ALB: albSG, Service: svcSG}, nil
}

func (c *Converger) ensureSecurityGroup(ctx context.Context, vpcID, name, desc string) (string, error) {
	out, err := c.aws.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: append(nameFilter(name), ec2types.Filter{
			Name: aws.String("vpc-id"), Values: []string{vpcID},
		}),
	})
	if err != nil {
		return "", err
	}
	if len(out.SecurityGroups) > 0 {
		return aws.ToString(out.SecurityGroups[0].GroupId), nil
	}

	created, err := c.aws.EC2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(name),
		Description:       aws.String(desc),
		VpcId:             aws.String(vpcID),
		TagSpecifications: tagSpec(ec2types.ResourceTypeSecurityGroup, name, c.cfg.Env),
	})
	if err != nil {
		return "", err
	}
	sgID := aws.ToString(created.GroupId)
	c.log.Info().Str("sg", sgID).Str("name", name).Msg("created security group")
	return sgID, nil
}

// authorizeIngress opens a single TCP port, either from a source security
// group or from a CIDR block. Duplicate rules are fine.
func (c *Converger) authorizeIngress(ctx context.Context, sgID string, port int, sourceSG, cidr string) error {
	perm := ec2types.IpPermission{
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int32(int32(port)),
		ToPort:     aws.Int32(int32(port)),
	}
	if sourceSG != "" {
		perm.UserIdGroupPairs = []ec2types.UserIdGroupPair{{GroupId: aws.String(sourceSG)}}
	} else {
		perm.IpRanges = []ec2types.IpRange{{CidrIp: aws.String(cidr)}}
	}

	_, err := c.aws.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(sgID),
		IpPermissions: []ec2types.IpPermission{perm},
	})
	if err != nil && apiErrorCode(err) != "InvalidPermission.Duplicate" {
		return err
	}
	return nil
}
