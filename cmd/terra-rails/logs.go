package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/boskiv/terra-rails-aws/deploy"
)

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	follow := fs.Bool("follow", false, "keep streaming new log events")
	tail := fs.Int("tail", 100, "number of recent events to show")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, *cfgPath, *logLevel)
	defer a.close(context.Background())

	emit := func(l deploy.LogLine) {
		fmt.Printf("%s %s %s\n", l.At.UTC().Format(time.RFC3339), l.Stream, l.Message)
	}

	if err := a.dep.TailLogs(ctx, *tail, emit); err != nil {
		a.log.Fatal().Err(err).Msg("failed to fetch logs")
	}
	if !*follow {
		return
	}
	if err := a.dep.FollowLogs(ctx, emit); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Fatal().Err(err).Msg("log stream ended")
	}
}
