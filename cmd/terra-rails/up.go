package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
)

func cmdUp(args []string) {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, *cfgPath, *logLevel)
	defer a.close(context.Background())

	out, err := a.conv.Converge(ctx)
	if err != nil {
		a.log.Fatal().Err(err).Msg("convergence failed")
	}
	if _, err := a.reg.EnsureRepository(ctx); err != nil {
		a.log.Fatal().Err(err).Msg("failed to ensure image repository")
	}

	fmt.Printf("VPC:           %s\n", out.VPCID)
	fmt.Printf("Cluster:       %s\n", out.ClusterName)
	fmt.Printf("Load balancer: http://%s\n", out.ALBDNSName)
}
