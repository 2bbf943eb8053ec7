package main

import (
	"context"
	"fmt"

	"github.com/kashguard/go-evidence/internal/evidence/anchor"
	"github.com/kashguard/go-evidence/internal/evidence/rollup"
	"github.com/spf13/cobra"
)

var rollupBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compute the Merkle rollup of one UTC day",
	Example: `  # Roll up yesterday
  ledger rollup build --backend s3 --bucket evidence

  # Roll up a given day and submit the root to the anchor service
  ledger rollup build --date 2025-01-09 --anchor-mode both`,
	Args: cobra.NoArgs,
	RunE: rollupBuildCmdRun,
}

type rollupBuildFlags struct {
	date       string
	dryRun     bool
	anchorMode string
}

var rollupBuildArgs rollupBuildFlags

func init() {
	rollupBuildCmd.Flags().StringVar(&rollupBuildArgs.date, "date", "",
		"Day to roll up as YYYY-MM-DD. Defaults to yesterday (UTC).")
	rollupBuildCmd.Flags().BoolVar(&rollupBuildArgs.dryRun, "dry-run", false,
		"Compute the root without writing any object.")
	rollupBuildCmd.Flags().StringVar(&rollupBuildArgs.anchorMode, "anchor-mode", "",
		"Anchoring mode: none, request, call or both. Overrides EVIDENCE_ROLLUP_ANCHOR_MODE.")
	rollupCmd.AddCommand(rollupBuildCmd)
}

func rollupBuildCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	cfg := loadConfig()
	store, err := openStore(ctx, cfg, "")
	if err != nil {
		return err
	}

	opts := rollup.BuildOptions{DryRun: rollupBuildArgs.dryRun, AnchorMode: rollupBuildArgs.anchorMode}
	if rollupBuildArgs.date != "" {
		if opts.Day, err = parseDay(rollupBuildArgs.date); err != nil {
			return err
		}
	}

	var submitter anchor.Submitter
	if cfg.Rollup.AnchorURL != "" {
		client, err := anchor.NewClient(cfg.Rollup.AnchorURL)
		if err != nil {
			return fmt.Errorf("unable to create anchor client: %w", err)
		}
		submitter = anchor.NewTracker(client, anchor.NewBlobStore(store), clock)
	}

	res, err := rollup.NewBuilder(store, cfg.Rollup, clock, submitter).Build(ctx, opts)
	if err != nil {
		return err
	}

	return printJSON(res)
}
