package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsecs "github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/boskiv/terra-rails-aws/infra"
)

// Rolling replacement bounds: keep the full replica set serving while the
// new revision comes up alongside it.
const (
	minimumHealthyPercent = 100
	maximumPercent        = 200
	healthCheckGraceS     = 60
)

// stableTimeout bounds WaitStable. Fargate pulls plus two passing ALB health
// checks fit well inside this.
const stableTimeout = 10 * time.Minute

// maxDescribeFailures is how many consecutive describe errors WaitStable
// tolerates before giving up instead of burning the whole timeout.
const maxDescribeFailures = 3

var stablePollInterval = 5 * time.Second

// EnsureService creates the ECS service on first deploy, or points the
// existing service at taskDefARN (which triggers the rolling replacement).
func (d *Deployer) EnsureService(ctx context.Context, out *infra.Outputs, taskDefARN string) error {
	name := d.ServiceName()

	existing, err := d.describeService(ctx)
	if err != nil {
		return err
	}

	if existing == nil {
		_, err = d.aws.ECS.CreateService(ctx, &awsecs.CreateServiceInput{
			Cluster:                       aws.String(out.ClusterName),
			ServiceName:                   aws.String(name),
			TaskDefinition:                aws.String(taskDefARN),
			DesiredCount:                  aws.Int32(int32(d.cfg.DesiredCount)),
			LaunchType:                    ecstypes.LaunchTypeFargate,
			HealthCheckGracePeriodSeconds: aws.Int32(healthCheckGraceS),
			DeploymentConfiguration: &ecstypes.DeploymentConfiguration{
				MinimumHealthyPercent: aws.Int32(minimumHealthyPercent),
				MaximumPercent:        aws.Int32(maximumPercent),
			},
			LoadBalancers: []ecstypes.LoadBalancer{
				{
					TargetGroupArn: aws.String(out.TargetGroupARN),
					ContainerName:  aws.String(ContainerName),
					ContainerPort:  aws.Int32(int32(d.cfg.ServicePort)),
				},
			},
			NetworkConfiguration: &ecstypes.NetworkConfiguration{
				AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
					Subnets:        out.SubnetIDs,
					SecurityGroups: []string{out.ServiceSGID},
					AssignPublicIp: ecstypes.AssignPublicIpEnabled,
				},
			},
			Tags: []ecstypes.Tag{
				{Key: aws.String(infra.ManagedByKey), Value: aws.String(infra.ManagedByValue)},
				{Key: aws.String(infra.EnvKey), Value: aws.String(d.cfg.Env)},
			},
		})
		if err != nil {
			return fmt.Errorf("creating service %s: %w", name, err)
		}
		d.log.Info().Str("service", name).Msg("created ecs service")
		return nil
	}

	_, err = d.aws.ECS.UpdateService(ctx, &awsecs.UpdateServiceInput{
		Cluster:        aws.String(out.ClusterName),
		Service:        aws.String(name),
		TaskDefinition: aws.String(taskDefARN),
		DesiredCount:   aws.Int32(int32(d.cfg.DesiredCount)),
	})
	if err != nil {
		return fmt.Errorf("updating service %s: %w", name, err)
	}
	d.log.Info().Str("service", name).Str("taskdef", taskDefARN).Msg("updated ecs service")
	return nil
}

// describeService returns the ACTIVE service, or nil if it does not exist.
func (d *Deployer) describeService(ctx context.Context) (*ecstypes.Service, error) {
	out, err := d.aws.ECS.DescribeServices(ctx, &awsecs.DescribeServicesInput{
		Cluster:  aws.String(d.cfg.Prefix() + "-cluster"),
		Services: []string{d.ServiceName()},
	})
	if err != nil {
		return nil, fmt.Errorf("describing service: %w", err)
	}
	for i := range out.Services {
		if aws.ToString(out.Services[i].Status) == "ACTIVE" {
			return &out.Services[i], nil
		}
	}
	return nil, nil
}

// WaitStable polls until the service has a single deployment with every
// replica running, i.e. the rolling replacement finished.
func (d *Deployer) WaitStable(ctx context.Context) error {
	deadline := time.After(stableTimeout)
	ticker := time.NewTicker(stablePollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timeout waiting for service to stabilize")
		case <-ticker.C:
			svc, err := d.describeService(ctx)
			if err != nil {
				failures++
				d.log.Warn().Err(err).Int("failures", failures).Msg("failed to describe service")
				if failures >= maxDescribeFailures {
					return err
				}
				continue
			}
			failures = 0
			if svc == nil {
				return fmt.Errorf("service %s disappeared while waiting", d.ServiceName())
			}
			if serviceStable(svc) {
				d.log.Info().
					Int32("running", svc.RunningCount).
					Msg("service stable")
				return nil
			}
			d.log.Debug().
				Int32("running", svc.RunningCount).
				Int32("desired", svc.DesiredCount).
				Int("deployments", len(svc.Deployments)).
				Msg("waiting for service to stabilize")
		}
	}
}

// serviceStable reports whether the rolling replacement has converged.
func serviceStable(svc *ecstypes.Service) bool {
	return len(svc.Deployments) == 1 && svc.RunningCount == svc.DesiredCount
}

// ServiceStatus is a point-in-time summary of the ECS service.
type ServiceStatus struct {
	TaskDefinition string
	Desired        int32
	Running        int32
	Pending        int32
	Deployments    int
	Stable         bool
}

// Status describes the current service, or nil if it does not exist.
func (d *Deployer) Status(ctx context.Context) (*ServiceStatus, error) {
	svc, err := d.describeService(ctx)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, nil
	}
	return &ServiceStatus{
		TaskDefinition: aws.ToString(svc.TaskDefinition),
		Desired:        svc.DesiredCount,
		Running:        svc.RunningCount,
		Pending:        svc.PendingCount,
		Deployments:    len(svc.Deployments),
		Stable:         serviceStable(svc),
	}, nil
}

// Event is one line of ECS service history, newest first.
type Event struct {
	At      time.Time
	Message string
}

// RecentEvents returns up to n recent service events for failure reporting.
func (d *Deployer) RecentEvents(ctx context.Context, n int) ([]Event, error) {
	svc, err := d.describeService(ctx)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, nil
	}
	var events []Event
	for _, e := range svc.Events {
		if len(events) >= n {
			break
		}
		events = append(events, Event{
			At:      aws.ToTime(e.CreatedAt),
			Message: aws.ToString(e.Message),
		})
	}
	return events, nil
}

// CurrentTaskDefinition returns the task definition ARN the service runs.
func (d *Deployer) CurrentTaskDefinition(ctx context.Context) (string, error) {
	svc, err := d.describeService(ctx)
	if err != nil {
		return "", err
	}
	if svc == nil {
		return "", fmt.Errorf("service %s not found", d.ServiceName())
	}
	return aws.ToString(svc.TaskDefinition), nil
}
