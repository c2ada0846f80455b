package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// ecsTasksAssumeRolePolicy lets ECS tasks assume the role.
const ecsTasksAssumeRolePolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"Service": "ecs-tasks.amazonaws.com"},
      "Action": "sts:AssumeRole"
    }
  ]
}`

const executionRolePolicyARN = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"

// Roles holds the converged IAM role ARNs.
type Roles struct {
	ExecutionRoleARN string
	TaskRoleARN      string
}

// ensureRoles converges the task execution role (image pull + log push) and
// the task role (empty by default; application permissions attach here).
func (c *Converger) ensureRoles(ctx context.Context) (*Roles, error) {
	prefix := c.cfg.Prefix()

	execARN, err := c.ensureRole(ctx, prefix+"-execution-role")
	if err != nil {
		return nil, fmt.Errorf("ensuring execution role: %w", err)
	}
	_, err = c.aws.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(prefix + "-execution-role"),
		PolicyArn: aws.String(executionRolePolicyARN),
	})
	if err != nil {
		return nil, fmt.Errorf("attaching execution role policy: %w", err)
	}

	taskARN, err := c.ensureRole(ctx, prefix+"-task-role")
	if err != nil {
		return nil, fmt.Errorf("ensuring task role: %w", err)
	}

	return &Roles{ExecutionRoleARN: execARN, TaskRoleARN: taskARN}, nil
}

func (c *Converger) ensureRole(ctx context.Context, name string) (string, error) {
	got, err := c.aws.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err == nil {
		return aws.ToString(got.Role.Arn), nil
	}
	var nse *iamtypes.NoSuchEntityException
	if !errors.As(err, &nse) {
		return "", err
	}

	created, err := c.aws.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(ecsTasksAssumeRolePolicy),
		Tags: []iamtypes.Tag{
			{Key: aws.String(ManagedByKey), Value: aws.String(ManagedByValue)},
			{Key: aws.String(EnvKey), Value: aws.String(c.cfg.Env)},
		},
	})
	if err != nil {
		return "", err
	}
	c.log.Info().Str("role", name).Msg("created iam role")
	return aws.ToString(created.Role.Arn), nil
}
