package infra

import (
	"context"
	"os"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/boskiv/terra-rails-aws/awsc"
	"github.com/boskiv/terra-rails-aws/config"
)

// TestConvergeIdempotent runs against a live AWS-compatible endpoint such as
// LocalStack. Gated so the unit suite stays hermetic:
//
//	TERRARAILS_ENDPOINT_URL=http://localhost:4566 go test ./infra -run Integration
func TestIntegrationConvergeIdempotent(t *testing.T) {
	endpoint := os.Getenv("TERRARAILS_ENDPOINT_URL")
	if endpoint == "" {
		t.Skip("TERRARAILS_ENDPOINT_URL not set")
	}

	ctx := context.Background()
	cfg := config.FromEnv()
	cfg.App = "infratest"
	cfg.Env = "it"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	clients, err := awsc.New(ctx, cfg.Region, endpoint)
	if err != nil {
		t.Fatal(err)
	}
	c := NewConverger(clients, cfg, zerolog.Nop())
	t.Cleanup(func() {
		_ = c.Destroy(context.Background())
	})

	first, err := c.Converge(ctx)
	if err != nil {
		t.Fatalf("first converge: %v", err)
	}
	second, err := c.Converge(ctx)
	if err != nil {
		t.Fatalf("second converge: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("converge is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	resolved, err := c.Lookup(ctx)
	if err != nil {
		t.Fatalf("lookup after converge: %v", err)
	}
	if resolved.VPCID != first.VPCID {
		t.Errorf("lookup vpc = %s, converge vpc = %s", resolved.VPCID, first.VPCID)
	}
}
