// Package main is the entry point for the OTADrop HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/OTADrop/internal/bootstrap"
	"github.com/dharsanguruparan/OTADrop/internal/config"
	"github.com/dharsanguruparan/OTADrop/internal/logging"
)

func main() {
	// Step 1: load configuration from the config file and environment.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logging.Init(log)

	// Step 2: cancel on SIGINT/SIGTERM so the server and cleanup pool drain.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Step 3: block until the HTTP server exits.
	if err := bootstrap.Serve(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
