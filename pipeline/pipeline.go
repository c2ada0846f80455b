package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/boskiv/terra-rails-aws/deploy"
	"github.com/boskiv/terra-rails-aws/infra"
	"github.com/boskiv/terra-rails-aws/registry"
)

// ImagePublisher builds and publishes the release artifact.
type ImagePublisher interface {
	EnsureRepository(ctx context.Context) (string, error)
	BuildAndPush(ctx context.Context, repoURI string, in registry.BuildInput) (string, error)
}

// InfraConverger converges the stack and reports its outputs.
type InfraConverger interface {
	Converge(ctx context.Context) (*infra.Outputs, error)
}

// ServiceDeployer rolls the compute service onto a new image.
type ServiceDeployer interface {
	RegisterTaskDefinition(ctx context.Context, imageRef string, out *infra.Outputs) (string, error)
	EnsureService(ctx context.Context, out *infra.Outputs, taskDefARN string) error
	WaitStable(ctx context.Context) error
	RecentEvents(ctx context.Context, n int) ([]deploy.Event, error)
}

// HealthVerifier gates pipeline success on the health endpoint.
type HealthVerifier interface {
	Verify(ctx context.Context, url string) error
}

// Pipeline runs one deployment. Runs are independent; concurrent deploys
// are not guarded here but by the CI runner's concurrency policy.
type Pipeline struct {
	Publisher ImagePublisher
	Converger InfraConverger
	Deployer  ServiceDeployer
	Verifier  HealthVerifier

	// HealthPath is appended to the ALB endpoint for verification.
	HealthPath string

	log zerolog.Logger
}

// New assembles a Pipeline from its steps.
func New(pub ImagePublisher, conv InfraConverger, dep ServiceDeployer, ver HealthVerifier, healthPath string, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		Publisher:  pub,
		Converger:  conv,
		Deployer:   dep,
		Verifier:   ver,
		HealthPath: healthPath,
		log:        log,
	}
}

// Result is the outcome of a pipeline run.
type Result struct {
	State       State
	ImageRef    string
	TaskDefARN  string
	EndpointURL string
}

// Run drives Building -> Converging -> Verifying. The returned Result
// always carries a terminal state; err is non-nil iff the state is Failed.
func (p *Pipeline) Run(ctx context.Context, in registry.BuildInput) (*Result, error) {
	res := &Result{State: StateBuilding}
	tracer := otel.Tracer("terra-rails")

	ctx, span := tracer.Start(ctx, "deploy",
		trace.WithAttributes(
			attribute.String("deploy.version", in.Version),
			attribute.String("deploy.commit", in.Commit),
		))
	defer span.End()

	imageRef, err := p.runBuilding(ctx, tracer, in)
	if err != nil {
		return p.fail(ctx, res, fmt.Errorf("build: %w", err))
	}
	res.ImageRef = imageRef

	res.State, err = advance(res.State, StateConverging)
	if err != nil {
		return p.fail(ctx, res, err)
	}

	out, taskDefARN, err := p.runConverging(ctx, tracer, imageRef)
	if err != nil {
		return p.fail(ctx, res, fmt.Errorf("converge: %w", err))
	}
	res.TaskDefARN = taskDefARN
	res.EndpointURL = "http://" + out.ALBDNSName + p.HealthPath

	res.State, err = advance(res.State, StateVerifying)
	if err != nil {
		return p.fail(ctx, res, err)
	}

	if err := p.runVerifying(ctx, tracer, res.EndpointURL); err != nil {
		return p.fail(ctx, res, fmt.Errorf("verify: %w", err))
	}

	res.State, _ = advance(res.State, StateSucceeded)
	p.log.Info().Str("image", imageRef).Str("endpoint", res.EndpointURL).Msg("deployment succeeded")
	return res, nil
}

func (p *Pipeline) runBuilding(ctx context.Context, tracer trace.Tracer, in registry.BuildInput) (string, error) {
	ctx, span := tracer.Start(ctx, "building")
	defer span.End()

	repoURI, err := p.Publisher.EnsureRepository(ctx)
	if err != nil {
		return "", err
	}
	return p.Publisher.BuildAndPush(ctx, repoURI, in)
}

func (p *Pipeline) runConverging(ctx context.Context, tracer trace.Tracer, imageRef string) (*infra.Outputs, string, error) {
	ctx, span := tracer.Start(ctx, "converging")
	defer span.End()

	out, err := p.Converger.Converge(ctx)
	if err != nil {
		return nil, "", err
	}
	taskDefARN, err := p.Deployer.RegisterTaskDefinition(ctx, imageRef, out)
	if err != nil {
		return nil, "", err
	}
	if err := p.Deployer.EnsureService(ctx, out, taskDefARN); err != nil {
		return nil, "", err
	}
	if err := p.Deployer.WaitStable(ctx); err != nil {
		return nil, "", err
	}
	return out, taskDefARN, nil
}

func (p *Pipeline) runVerifying(ctx context.Context, tracer trace.Tracer, url string) error {
	ctx, span := tracer.Start(ctx, "verifying")
	defer span.End()

	return p.Verifier.Verify(ctx, url)
}

// fail marks the run Failed, surfaces recent service events, and prints the
// manual rollback hint. No automatic rollback happens here.
func (p *Pipeline) fail(ctx context.Context, res *Result, err error) (*Result, error) {
	res.State = StateFailed
	p.log.Error().Err(err).Msg("deployment failed")

	events, evErr := p.Deployer.RecentEvents(ctx, 10)
	if evErr == nil {
		for _, e := range events {
			p.log.Error().Time("at", e.At).Msg(e.Message)
		}
	}

	p.log.Error().Msg("no automatic rollback; run `terra-rails rollback` to return to the previous revision")
	return res, err
}
