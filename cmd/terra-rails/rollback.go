package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
)

func cmdRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	revision := fs.Int("revision", 0, "task definition revision to roll back to (0 = previous)")
	skipVerify := fs.Bool("skip-verify", false, "do not probe the health endpoint after rolling back")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, *cfgPath, *logLevel)
	defer a.close(context.Background())

	if err := a.dep.Rollback(ctx, *revision); err != nil {
		a.log.Fatal().Err(err).Msg("rollback failed")
	}

	if !*skipVerify {
		out, err := a.conv.Lookup(ctx)
		if err != nil {
			a.log.Fatal().Err(err).Msg("failed to resolve stack")
		}
		url := "http://" + out.ALBDNSName + a.cfg.HealthPath
		if err := a.verifier().Verify(ctx, url); err != nil {
			a.log.Fatal().Err(err).Msg("rolled-back service failed verification")
		}
	}

	taskDef, err := a.dep.CurrentTaskDefinition(ctx)
	if err == nil {
		fmt.Printf("Rolled back to %s\n", taskDef)
	}
}
