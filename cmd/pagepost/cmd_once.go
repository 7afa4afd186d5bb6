package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deusflow/pagepost/internal/app"
	"github.com/deusflow/pagepost/internal/logger"
	"github.com/deusflow/pagepost/internal/metrics"
	"github.com/deusflow/pagepost/internal/pipeline"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single fetch and process cycle, then exit",
	RunE:  runOnce,
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.Init(cfg.Debug)
	defer logger.Sync()

	bot, err := app.New(cmd.Context(), cfg, metrics.Global, log)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer bot.Close()

	_, rep := bot.RunCycle(cmd.Context(), bot.Seen())
	if rep.FetchErr != nil {
		return fmt.Errorf("fetch: %w", rep.FetchErr)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fetched:    %d\n", rep.Fetched)
	fmt.Fprintf(out, "Duplicates: %d\n", rep.Duplicates)
	fmt.Fprintf(out, "Low score:  %d\n", rep.LowScore)
	for _, r := range rep.Results {
		fmt.Fprintf(out, "  %s  %s\n", r.Item.ID, r.Outcome)
	}
	fmt.Fprintf(out, "Published %d, skipped %d, failed %d\n",
		rep.Count(pipeline.StatusPublished), rep.Count(pipeline.StatusSkipped), rep.Count(pipeline.StatusFailed))
	return nil
}
