package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// VPCCidr is the address space for the deployment VPC. Subnet n gets
// 10.42.n.0/24 of it.
const VPCCidr = "10.42.0.0/16"

// publicSubnetCount is fixed: the ALB requires subnets in at least two AZs.
const publicSubnetCount = 2

// Network holds the IDs of converged network resources.
type Network struct {
	VPCID     string
	SubnetIDs []string
	IGWID     string
}

// subnetCIDR carves the nth /24 out of VPCCidr.
func subnetCIDR(n int) string {
	base := strings.TrimSuffix(VPCCidr, ".0.0/16")
	return fmt.Sprintf("%s.%d.0/24", base, n)
}

// ensureNetwork converges the VPC, public subnets, internet gateway, and
// routing. Every ensure looks up by Name tag first so a re-run with an
// unchanged config changes nothing.
func (c *Converger) ensureNetwork(ctx context.Context) (*Network, error) {
	net := &Network{}
	prefix := c.cfg.Prefix()

	vpcID, err := c.ensureVPC(ctx, prefix+"-vpc")
	if err != nil {
		return nil, fmt.Errorf("ensuring vpc: %w", err)
	}
	net.VPCID = vpcID

	azs, err := c.availabilityZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing availability zones: %w", err)
	}
	if len(azs) < publicSubnetCount {
		return nil, fmt.Errorf("region %s has %d availability zones, need %d", c.cfg.Region, len(azs), publicSubnetCount)
	}

	for i := 0; i < publicSubnetCount; i++ {
		name := fmt.Sprintf("%s-public-%d", prefix, i)
		subnetID, err := c.ensureSubnet(ctx, vpcID, name, subnetCIDR(i), azs[i])
		if err != nil {
			return nil, fmt.Errorf("ensuring subnet %s: %w", name, err)
		}
		net.SubnetIDs = append(net.SubnetIDs, subnetID)
	}

	igwID, err := c.ensureInternetGateway(ctx, vpcID, prefix+"-igw")
	if err != nil {
		return nil, fmt.Errorf("ensuring internet gateway: %w", err)
	}
	net.IGWID = igwID

	if err := c.ensurePublicRoute(ctx, vpcID, igwID, net.SubnetIDs, prefix+"-public-rt"); err != nil {
		return nil, fmt.Errorf("ensuring routes: %w", err)
	}

	return net, nil
}

func (c *Converger) ensureVPC(ctx context.Context, name string) (string, error) {
	out, err := c.aws.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: nameFilter(name)})
	if err != nil {
		return "", err
	}
	if len(out.Vpcs) > 0 {
		return aws.ToString(out.Vpcs[0].VpcId), nil
	}

	created, err := c.aws.EC2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(VPCCidr),
		TagSpecifications: tagSpec(ec2types.ResourceTypeVpc, name, c.cfg.Env),
	})
	if err != nil {
		return "", err
	}
	vpcID := aws.ToString(created.Vpc.VpcId)
	c.log.Info().Str("vpc", vpcID).Msg("created vpc")

	// Tasks resolve the ECR and logs endpoints over VPC DNS; both
	// attributes are off by default on a created VPC.
	for _, attr := range []ec2types.VpcAttributeName{
		ec2types.VpcAttributeNameEnableDnsSupport,
		ec2types.VpcAttributeNameEnableDnsHostnames,
	} {
		input := &ec2.ModifyVpcAttributeInput{VpcId: aws.String(vpcID)}
		if attr == ec2types.VpcAttributeNameEnableDnsSupport {
			input.EnableDnsSupport = &ec2types.AttributeBooleanValue{Value: aws.Bool(true)}
		} else {
			input.EnableDnsHostnames = &ec2types.AttributeBooleanValue{Value: aws.Bool(true)}
		}
		if _, err := c.aws.EC2.ModifyVpcAttribute(ctx, input); err != nil {
			return "", fmt.Errorf("enabling %s: %w", attr, err)
		}
	}

	return vpcID, nil
}

func (c *Converger) availabilityZones(ctx context.Context) ([]string, error) {
	out, err := c.aws.EC2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("state"), Values: []string{"available"}},
		},
	})
	if err != nil {
		return nil, err
	}
	var azs []string
	for _, az := range out.AvailabilityZones {
		azs = append(azs, aws.ToString(az.ZoneName))
	}
	return azs, nil
}

func (c *Converger) ensureSubnet(ctx context.Context, vpcID, name, cidr, az string) (string, error) {
	out, err := c.aws.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{Filters: nameFilter(name)})
	if err != nil {
		return "", err
	}
	if len(out.Subnets) > 0 {
		return aws.ToString(out.Subnets[0].SubnetId), nil
	}

	created, err := c.aws.EC2.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:             aws.String(vpcID),
		CidrBlock:         aws.String(cidr),
		AvailabilityZone:  aws.String(az),
		TagSpecifications: tagSpec(ec2types.ResourceTypeSubnet, name, c.cfg.Env),
	})
	if err != nil {
		return "", err
	}
	subnetID := aws.ToString(created.Subnet.SubnetId)

	// Fargate tasks in public subnets need a public IP to pull from ECR
	// without a NAT gateway.
	_, err = c.aws.EC2.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            aws.String(subnetID),
		MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
	})
	if err != nil {
		return "", fmt.Errorf("enabling public IPs on %s: %w", subnetID, err)
	}

	c.log.Info().Str("subnet", subnetID).Str("az", az).Msg("created subnet")
	return subnetID, nil
}

func (c *Converger) ensureInternetGateway(ctx context.Context, vpcID, name string) (string, error) {
	out, err := c.aws.EC2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{Filters: nameFilter(name)})
	if err != nil {
		return "", err
	}
	if len(out.InternetGateways) > 0 {
		igw := out.InternetGateways[0]
		igwID := aws.ToString(igw.InternetGatewayId)
		for _, att := range igw.Attachments {
			if aws.ToString(att.VpcId) == vpcID {
				return igwID, nil
			}
		}
		// Exists but detached (interrupted earlier run); re-attach.
		if _, err := c.aws.EC2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: aws.String(igwID),
			VpcId:             aws.String(vpcID),
		}); err != nil {
			return "", err
		}
		return igwID, nil
	}

	created, err := c.aws.EC2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpec(ec2types.ResourceTypeInternetGateway, name, c.cfg.Env),
	})
	if err != nil {
		return "", err
	}
	igwID := aws.ToString(created.InternetGateway.InternetGatewayId)

	_, err = c.aws.EC2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
		VpcId:             aws.String(vpcID),
	})
	if err != nil {
		return "", fmt.Errorf("attaching %s: %w", igwID, err)
	}

	c.log.Info().Str("igw", igwID).Msg("created internet gateway")
	return igwID, nil
}

func (c *Converger) ensurePublicRoute(ctx context.Context, vpcID, igwID string, subnetIDs []string, name string) error {
	out, err := c.aws.EC2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{Filters: nameFilter(name)})
	if err != nil {
		return err
	}

	var rtID string
	if len(out.RouteTables) > 0 {
		rtID = aws.ToString(out.RouteTables[0].RouteTableId)
	} else {
		created, err := c.aws.EC2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
			VpcId:             aws.String(vpcID),
			TagSpecifications: tagSpec(ec2types.ResourceTypeRouteTable, name, c.cfg.Env),
		})
		if err != nil {
			return err
		}
		rtID = aws.ToString(created.RouteTable.RouteTableId)

		_, err = c.aws.EC2.CreateRoute(ctx, &ec2.CreateRouteInput{
			RouteTableId:         aws.String(rtID),
			DestinationCidrBlock: aws.String("0.0.0.0/0"),
			GatewayId:            aws.String(igwID),
		})
		if err != nil {
			return fmt.Errorf("creating default route: %w", err)
		}
		c.log.Info().Str("route-table", rtID).Msg("created route table")
	}

	// Associations are idempotent to request; already-associated subnets
	// return the existing association.
	for _, subnetID := range subnetIDs {
		_, err := c.aws.EC2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: aws.String(rtID),
			SubnetId:     aws.String(subnetID),
		})
		if err != nil && apiErrorCode(err) != "Resource.AlreadyAssociated" {
			return fmt.Errorf("associating %s: %w", subnetID, err)
		}
	}

	return nil
}
