package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

func cmdDestroy(args []string) {
	fs := flag.NewFlagSet("destroy", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, *cfgPath, *logLevel)
	defer a.close(context.Background())

	if !*yes {
		fmt.Printf("This deletes all %s infrastructure in %s. Type the stack name to confirm: ", a.cfg.Prefix(), a.cfg.Region)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(line) != a.cfg.Prefix() {
			fmt.Fprintln(os.Stderr, "aborted")
			os.Exit(1)
		}
	}

	if err := a.reg.DeleteRepository(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to delete image repository")
	}
	if err := a.conv.Destroy(ctx); err != nil {
		a.log.Fatal().Err(err).Msg("destroy failed")
	}
	fmt.Println("Destroyed.")
}
