package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/boskiv/terra-rails-aws/awsc"
	"github.com/boskiv/terra-rails-aws/config"
	"github.com/boskiv/terra-rails-aws/deploy"
	"github.com/boskiv/terra-rails-aws/infra"
	"github.com/boskiv/terra-rails-aws/pipeline"
	"github.com/boskiv/terra-rails-aws/registry"
	"github.com/boskiv/terra-rails-aws/telemetry"
)

// app bundles everything a command needs against one converged stack.
type app struct {
	cfg config.Config
	log zerolog.Logger
	aws *awsc.Clients

	conv *infra.Converger
	reg  *registry.Registry
	dep  *deploy.Deployer

	shutdown func(context.Context) error
}

// commonFlags registers the flags every command shares.
func commonFlags(fs *flag.FlagSet) (cfgPath, logLevel *string) {
	cfgPath = fs.String("config", "terra-rails.toml", "path to config file")
	logLevel = fs.String("log-level", "info", "log level (debug, info, warn, error)")
	return cfgPath, logLevel
}

func newApp(ctx context.Context, cfgPath, logLevel string) *app {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "terra-rails").Logger().
		Level(level)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	shutdown, err := telemetry.InitTracer("terra-rails", version)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}

	clients, err := awsc.New(ctx, cfg.Region, cfg.EndpointURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create aws clients")
	}

	return &app{
		cfg:      cfg,
		log:      logger,
		aws:      clients,
		conv:     infra.NewConverger(clients, cfg, logger.With().Str("component", "infra").Logger()),
		reg:      registry.New(clients, cfg, logger.With().Str("component", "registry").Logger()),
		dep:      deploy.New(clients, cfg, logger.With().Str("component", "deploy").Logger()),
		shutdown: shutdown,
	}
}

func (a *app) close(ctx context.Context) {
	_ = a.shutdown(ctx)
}

func (a *app) verifier() *pipeline.Verifier {
	return pipeline.NewVerifier(a.cfg.ProbeAttempts, a.cfg.ProbeInterval.Std(),
		a.log.With().Str("component", "verify").Logger())
}

func (a *app) pipeline() *pipeline.Pipeline {
	return pipeline.New(a.reg, a.conv, a.dep, a.verifier(), a.cfg.HealthPath,
		a.log.With().Str("component", "pipeline").Logger())
}
