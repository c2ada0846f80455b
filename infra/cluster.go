package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

const logRetentionDays = 30

// ensureCluster converges the ECS cluster with container insights enabled.
func (c *Converger) ensureCluster(ctx context.Context) (string, error) {
	name := c.cfg.Prefix() + "-cluster"

	out, err := c.aws.ECS.DescribeClusters(ctx, &ecs.DescribeClustersInput{
		Clusters: []string{name},
	})
	if err != nil {
		return "", err
	}
	for _, cl := range out.Clusters {
		if aws.ToString(cl.Status) == "ACTIVE" {
			return aws.ToString(cl.ClusterArn), nil
		}
	}

	created, err := c.aws.ECS.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName: aws.String(name),
		Settings: []ecstypes.ClusterSetting{
			{Name: ecstypes.ClusterSettingNameContainerInsights, Value: aws.String("enabled")},
		},
		Tags: []ecstypes.Tag{
			{Key: aws.String(ManagedByKey), Value: aws.String(ManagedByValue)},
			{Key: aws.String(EnvKey), Value: aws.String(c.cfg.Env)},
		},
	})
	if err != nil {
		return "", err
	}
	c.log.Info().Str("cluster", name).Msg("created ecs cluster")
	return aws.ToString(created.Cluster.ClusterArn), nil
}

// ensureLogGroup converges the awslogs log group tasks write to.
func (c *Converger) ensureLogGroup(ctx context.Context) (string, error) {
	name := "/" + c.cfg.Prefix()

	_, err := c.aws.CloudWatch.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
		Tags: map[string]string{
			ManagedByKey: ManagedByValue,
			EnvKey:       c.cfg.Env,
		},
	})
	if err != nil {
		var exists *cwltypes.ResourceAlreadyExistsException
		if !errors.As(err, &exists) {
			return "", err
		}
		return name, nil
	}

	_, err = c.aws.CloudWatch.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(name),
		RetentionInDays: aws.Int32(logRetentionDays),
	})
	if err != nil {
		return "", fmt.Errorf("setting retention on %s: %w", name, err)
	}

	c.log.Info().Str("log-group", name).Msg("created log group")
	return name, nil
}
