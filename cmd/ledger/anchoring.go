package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/evidence/anchor"
	"github.com/spf13/cobra"
)

var anchoringCmd = &cobra.Command{
	Use:   "anchoring",
	Short: "Inspect and refresh external anchors",
}

var anchoringIssuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "Detect anchoring issues in a look-back window",
	Example: `  # Scan the last week including period gaps
  ledger anchoring issues --window-days 7 --check-gaps`,
	Args: cobra.NoArgs,
	RunE: anchoringIssuesCmdRun,
}

var anchoringRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Poll the anchor service for pending anchors",
	Args:  cobra.NoArgs,
	RunE:  anchoringRefreshCmdRun,
}

type anchoringFlags struct {
	windowDays int
	checkGaps  bool
}

var anchoringArgs anchoringFlags

func init() {
	anchoringCmd.PersistentFlags().IntVar(&anchoringArgs.windowDays, "window-days", 0,
		"Look-back window in days. Overrides EVIDENCE_ANCHORING_WINDOW_DAYS.")
	anchoringIssuesCmd.Flags().BoolVar(&anchoringArgs.checkGaps, "check-gaps", false,
		"Report missing days between anchored periods.")
	anchoringCmd.AddCommand(anchoringIssuesCmd, anchoringRefreshCmd)
	rootCmd.AddCommand(anchoringCmd)
}

func anchoringIssuesCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	cfg := loadConfig()
	store, err := openStore(ctx, cfg, "")
	if err != nil {
		return err
	}
	detector, err := api.NewDetector(cfg, store, clock)
	if err != nil {
		return err
	}

	opts := anchor.DetectOptions{WindowDays: anchoringArgs.windowDays}
	if cmd.Flags().Changed("check-gaps") {
		opts.CheckGaps = &anchoringArgs.checkGaps
	}

	report, err := detector.Detect(ctx, opts)
	if err != nil {
		return err
	}

	return printJSON(report)
}

func anchoringRefreshCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	cfg := loadConfig()
	if cfg.Rollup.AnchorURL == "" {
		return fmt.Errorf("EVIDENCE_ROLLUP_ANCHOR_URL is not set")
	}
	store, err := openStore(ctx, cfg, "")
	if err != nil {
		return err
	}
	client, err := anchor.NewClient(cfg.Rollup.AnchorURL)
	if err != nil {
		return fmt.Errorf("unable to create anchor client: %w", err)
	}

	days := anchoringArgs.windowDays
	if days == 0 {
		days = cfg.Anchoring.WindowDays
	}
	since := clock.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	res, err := anchor.NewTracker(client, anchor.NewBlobStore(store), clock).Refresh(ctx, since)
	if err != nil {
		return err
	}

	return printJSON(res)
}
