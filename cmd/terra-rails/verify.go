package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
)

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	url := fs.String("url", "", "health URL to probe (default: the stack's load balancer)")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, *cfgPath, *logLevel)
	defer a.close(context.Background())

	target := *url
	if target == "" {
		out, err := a.conv.Lookup(ctx)
		if err != nil {
			a.log.Fatal().Err(err).Msg("failed to resolve stack")
		}
		target = "http://" + out.ALBDNSName + a.cfg.HealthPath
	}

	if err := a.verifier().Verify(ctx, target); err != nil {
		a.log.Fatal().Err(err).Msg("verification failed")
	}
	fmt.Printf("OK: %s\n", target)
}
