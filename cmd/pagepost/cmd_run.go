package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/pagepost/internal/app"
	"github.com/deusflow/pagepost/internal/logger"
	"github.com/deusflow/pagepost/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scan loop until interrupted",
	RunE:  runLoop,
}

func runLoop(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.Init(cfg.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := app.New(ctx, cfg, metrics.Global, log)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if err := bot.Close(); err != nil {
			log.Warnw("shutdown cleanup failed", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	if cfg.EnableMonitoring {
		addr := ":" + cfg.MonitoringPort
		log.Infow("monitoring server listening", "addr", addr)
		g.Go(func() error { return metrics.Serve(gctx, addr, metrics.Global) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Infow("pagepost stopped")
	return nil
}
