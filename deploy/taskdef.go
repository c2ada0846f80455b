// Package deploy manages ECS task definition revisions and the long-running
// service that fronts them, including manual rollback to prior revisions.
package deploy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsecs "github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rs/zerolog"

	"github.com/boskiv/terra-rails-aws/awsc"
	"github.com/boskiv/terra-rails-aws/config"
	"github.com/boskiv/terra-rails-aws/infra"
)

// ContainerName is the single container in the task definition. The target
// group and service registries reference it by this name.
const ContainerName = "web"

// Deployer drives service deployments against a converged stack.
type Deployer struct {
	aws *awsc.Clients
	cfg config.Config
	log zerolog.Logger
}

// New creates a Deployer.
func New(clients *awsc.Clients, cfg config.Config, log zerolog.Logger) *Deployer {
	return &Deployer{aws: clients, cfg: cfg, log: log}
}

// ServiceName returns the ECS service name for the stack.
func (d *Deployer) ServiceName() string {
	return d.cfg.Prefix() + "-service"
}

// Family returns the task definition family for the stack.
func (d *Deployer) Family() string {
	return d.cfg.Prefix()
}

// RegisterTaskDefinition registers a new revision pointing at imageRef and
// returns its ARN. Registration is append-only; old revisions stay ACTIVE
// and are the rollback targets.
func (d *Deployer) RegisterTaskDefinition(ctx context.Context, imageRef string, out *infra.Outputs) (string, error) {
	containerDef := ecstypes.ContainerDefinition{
		Name:      aws.String(ContainerName),
		Image:     aws.String(imageRef),
		Essential: aws.Bool(true),
		PortMappings: []ecstypes.PortMapping{
			{
				ContainerPort: aws.Int32(int32(d.cfg.ServicePort)),
				Protocol:      ecstypes.TransportProtocolTcp,
			},
		},
		Environment: []ecstypes.KeyValuePair{
			{Name: aws.String("PORT"), Value: aws.String(fmt.Sprintf("%d", d.cfg.ServicePort))},
			{Name: aws.String("RAILS_ENV"), Value: aws.String(d.cfg.Env)},
		},
		LogConfiguration: &ecstypes.LogConfiguration{
			LogDriver: ecstypes.LogDriverAwslogs,
			Options: map[string]string{
				"awslogs-group":         out.LogGroup,
				"awslogs-region":        d.cfg.Region,
				"awslogs-stream-prefix": ContainerName,
			},
		},
	}

	result, err := d.aws.ECS.RegisterTaskDefinition(ctx, &awsecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(d.Family()),
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		Cpu:                     aws.String(d.cfg.CPU),
		Memory:                  aws.String(d.cfg.Memory),
		ExecutionRoleArn:        aws.String(out.ExecutionRoleARN),
		TaskRoleArn:             aws.String(out.TaskRoleARN),
		ContainerDefinitions:    []ecstypes.ContainerDefinition{containerDef},
	})
	if err != nil {
		return "", fmt.Errorf("registering task definition: %w", err)
	}

	arn := aws.ToString(result.TaskDefinition.TaskDefinitionArn)
	d.log.Info().Str("taskdef", arn).Str("image", imageRef).Msg("registered task definition")
	return arn, nil
}
