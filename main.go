package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kyleking/gh-releasewatch/internal/app"
	"github.com/kyleking/gh-releasewatch/internal/config"
)

func main() {
	flags := config.NewFlagSet("gh-releasewatch")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := config.NewLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log, app.Overrides{})
	if err != nil {
		log.WithError(err).Fatal("failed to initialise")
	}

	if _, err := a.RunOnce(ctx); err != nil {
		log.WithError(err).Error("watch pass failed")
		stop()
		os.Exit(1)
	}
}
