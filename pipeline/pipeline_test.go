package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/boskiv/terra-rails-aws/deploy"
	"github.com/boskiv/terra-rails-aws/infra"
	"github.com/boskiv/terra-rails-aws/registry"
)

type fakePublisher struct {
	buildErr error
}

func (f *fakePublisher) EnsureRepository(ctx context.Context) (string, error) {
	return "123456789012.dkr.ecr.us-east-1.amazonaws.com/rails-production", nil
}

func (f *fakePublisher) BuildAndPush(ctx context.Context, repoURI string, in registry.BuildInput) (string, error) {
	if f.buildErr != nil {
		return "", f.buildErr
	}
	return repoURI + ":" + in.Version, nil
}

type fakeConverger struct {
	err error
}

func (f *fakeConverger) Converge(ctx context.Context) (*infra.Outputs, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &infra.Outputs{ALBDNSName: "rails-production-1234.us-east-1.elb.amazonaws.com"}, nil
}

type fakeDeployer struct {
	registerErr error
	stableErr   error
	events      []deploy.Event
	eventCalls  int
}

func (f *fakeDeployer) RegisterTaskDefinition(ctx context.Context, imageRef string, out *infra.Outputs) (string, error) {
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return "arn:aws:ecs:us-east-1:123456789012:task-definition/rails-production:7", nil
}

func (f *fakeDeployer) EnsureService(ctx context.Context, out *infra.Outputs, taskDefARN string) error {
	return nil
}

func (f *fakeDeployer) WaitStable(ctx context.Context) error {
	return f.stableErr
}

func (f *fakeDeployer) RecentEvents(ctx context.Context, n int) ([]deploy.Event, error) {
	f.eventCalls++
	return f.events, nil
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(ctx context.Context, url string) error {
	return f.err
}

func testPipeline(pub *fakePublisher, conv *fakeConverger, dep *fakeDeployer, ver *fakeVerifier) *Pipeline {
	return New(pub, conv, dep, ver, "/health", zerolog.Nop())
}

func TestRunSucceeds(t *testing.T) {
	p := testPipeline(&fakePublisher{}, &fakeConverger{}, &fakeDeployer{}, &fakeVerifier{})

	res, err := p.Run(context.Background(), registry.BuildInput{Version: "v1.2.3", Commit: "abc1234def"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateSucceeded {
		t.Errorf("state = %s, want %s", res.State, StateSucceeded)
	}
	if res.ImageRef != "123456789012.dkr.ecr.us-east-1.amazonaws.com/rails-production:v1.2.3" {
		t.Errorf("image ref = %q", res.ImageRef)
	}
	if res.EndpointURL != "http://rails-production-1234.us-east-1.elb.amazonaws.com/health" {
		t.Errorf("endpoint = %q", res.EndpointURL)
	}
}

func TestRunBuildFailureHalts(t *testing.T) {
	conv := &fakeConverger{err: errors.New("should not be reached")}
	dep := &fakeDeployer{}
	p := testPipeline(&fakePublisher{buildErr: errors.New("push denied")}, conv, dep, &fakeVerifier{})

	res, err := p.Run(context.Background(), registry.BuildInput{Version: "v1.0.0"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.State != StateFailed {
		t.Errorf("state = %s, want %s", res.State, StateFailed)
	}
	if dep.eventCalls != 1 {
		t.Errorf("RecentEvents calls = %d, want 1", dep.eventCalls)
	}
}

func TestRunConvergeFailure(t *testing.T) {
	p := testPipeline(&fakePublisher{}, &fakeConverger{err: errors.New("subnet quota")}, &fakeDeployer{}, &fakeVerifier{})

	res, err := p.Run(context.Background(), registry.BuildInput{Version: "v1.0.0"})
	if err == nil || res.State != StateFailed {
		t.Fatalf("state = %s, err = %v", res.State, err)
	}
	if res.ImageRef == "" {
		t.Error("image ref should survive a converge failure")
	}
}

func TestRunStabilityFailure(t *testing.T) {
	dep := &fakeDeployer{
		stableErr: errors.New("service did not stabilize"),
		events: []deploy.Event{
			{Message: "(service rails-production-service) failed to place a task"},
		},
	}
	p := testPipeline(&fakePublisher{}, &fakeConverger{}, dep, &fakeVerifier{})

	res, err := p.Run(context.Background(), registry.BuildInput{Version: "v1.0.0"})
	if err == nil || res.State != StateFailed {
		t.Fatalf("state = %s, err = %v", res.State, err)
	}
	if dep.eventCalls != 1 {
		t.Errorf("RecentEvents calls = %d, want 1", dep.eventCalls)
	}
}

func TestRunVerifyFailure(t *testing.T) {
	p := testPipeline(&fakePublisher{}, &fakeConverger{}, &fakeDeployer{}, &fakeVerifier{err: errors.New("health check failed after 30 attempts")})

	res, err := p.Run(context.Background(), registry.BuildInput{Version: "v1.0.0"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.State != StateFailed {
		t.Errorf("state = %s, want %s", res.State, StateFailed)
	}
	if res.EndpointURL == "" {
		t.Error("endpoint should be set before verification runs")
	}
}
