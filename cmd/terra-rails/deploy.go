package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/boskiv/terra-rails-aws/registry"
)

func cmdDeploy(args []string) {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	relVersion := fs.String("version", "", "release version tag (e.g. v1.2.3)")
	relCommit := fs.String("commit", os.Getenv("GITHUB_SHA"), "git commit SHA of the release")
	fs.Parse(args)

	if *relVersion == "" {
		fmt.Fprintln(os.Stderr, "error: -version is required")
		os.Exit(1)
	}
	if *relCommit == "" {
		fmt.Fprintln(os.Stderr, "error: -commit is required (or set GITHUB_SHA)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, *cfgPath, *logLevel)

	a.log.Info().Str("version", *relVersion).Str("commit", *relCommit).Msg("starting deployment")

	res, err := a.pipeline().Run(ctx, registry.BuildInput{
		Version: *relVersion,
		Commit:  *relCommit,
	})
	a.close(context.Background())
	if err != nil {
		os.Exit(1)
	}
	fmt.Printf("Deployed %s\n", res.ImageRef)
	fmt.Printf("Endpoint: %s\n", res.EndpointURL)
}
