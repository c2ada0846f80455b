package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
)

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, *cfgPath, *logLevel)
	defer a.close(context.Background())

	out, err := a.conv.Lookup(ctx)
	if err != nil {
		a.log.Fatal().Err(err).Msg("failed to resolve stack")
	}

	fmt.Printf("Stack:         %s\n", a.cfg.Prefix())
	fmt.Printf("Region:        %s\n", a.cfg.Region)
	if account, err := a.aws.AccountID(ctx); err == nil {
		fmt.Printf("Account:       %s\n", account)
	}
	fmt.Printf("VPC:           %s\n", out.VPCID)
	fmt.Printf("Cluster:       %s\n", out.ClusterName)
	fmt.Printf("Load balancer: http://%s\n", out.ALBDNSName)

	svc, err := a.dep.Status(ctx)
	if err != nil {
		a.log.Fatal().Err(err).Msg("failed to describe service")
	}
	if svc == nil {
		fmt.Println("Service:       not deployed")
		return
	}

	state := "rolling"
	if svc.Stable {
		state = "stable"
	}
	fmt.Printf("Service:       %s (%d/%d running, %d pending, %d deployments)\n",
		state, svc.Running, svc.Desired, svc.Pending, svc.Deployments)
	fmt.Printf("Task def:      %s\n", svc.TaskDefinition)

	targets, err := a.conv.DescribeTargetHealth(ctx, out.TargetGroupARN)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to describe target health")
		return
	}
	for _, t := range targets {
		line := fmt.Sprintf("Target:        %s:%d %s", t.ID, t.Port, t.State)
		if t.Reason != "" {
			line += " (" + t.Reason + ")"
		}
		fmt.Println(line)
	}
}
