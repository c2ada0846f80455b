package infra

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// Every resource the deployer creates carries these tags so convergence can
// find what it owns and destroy can tear down nothing else.
const (
	ManagedByKey   = "managed-by"
	ManagedByValue = "terra-rails"
	EnvKey         = "terra-rails-env"
)

// ec2Tags returns the standard tag set for an EC2-family resource.
func ec2Tags(name, env string) []ec2types.Tag {
	return []ec2types.Tag{
		{Key: aws.String("Name"), Value: aws.String(name)},
		{Key: aws.String(ManagedByKey), Value: aws.String(ManagedByValue)},
		{Key: aws.String(EnvKey), Value: aws.String(env)},
	}
}

// tagSpec wraps ec2Tags in a TagSpecification for create calls.
func tagSpec(rt ec2types.ResourceType, name, env string) []ec2types.TagSpecification {
	return []ec2types.TagSpecification{
		{ResourceType: rt, Tags: ec2Tags(name, env)},
	}
}

// nameFilter matches resources by their Name tag plus the managed-by marker.
func nameFilter(name string) []ec2types.Filter {
	return []ec2types.Filter{
		{Name: aws.String("tag:Name"), Values: []string{name}},
		{Name: aws.String("tag:" + ManagedByKey), Values: []string{ManagedByValue}},
	}
}

// managedFilter matches every managed resource inside a VPC.
func managedFilter(vpcID string) []ec2types.Filter {
	return []ec2types.Filter{
		{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		{Name: aws.String("tag:" + ManagedByKey), Values: []string{ManagedByValue}},
	}
}

// apiErrorCode returns the AWS API error code, or "" for non-API errors.
func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// isNotFound reports whether err is one of the NotFound-style codes the
// teardown path treats as already-gone.
func isNotFound(err error) bool {
	switch apiErrorCode(err) {
	case "InvalidVpcID.NotFound", "InvalidSubnetID.NotFound",
		"InvalidInternetGatewayID.NotFound", "InvalidRouteTableID.NotFound",
		"InvalidGroup.NotFound", "LoadBalancerNotFound", "TargetGroupNotFound",
		"ListenerNotFound", "ResourceNotFoundException", "NoSuchEntity",
		"ClusterNotFoundException", "ServiceNotFoundException",
		"RepositoryNotFoundException":
		return true
	}
	return false
}
