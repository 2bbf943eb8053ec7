package main

import (
	"context"

	"github.com/kashguard/go-evidence/internal/evidence/gc"
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect stale objects",
}

var gcPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Delete pending objects older than a threshold",
	Example: `  # Show what would be deleted
  ledger gc pending --older-than-hours 24 --dry-run

  # Delete
  ledger gc pending --older-than-hours 24 --confirm DELETE`,
	Args: cobra.NoArgs,
	RunE: gcPendingCmdRun,
}

type gcPendingFlags struct {
	olderThanHours float64
	prefix         string
	maxDelete      int
	maxBytes       int64
	dryRun         bool
	confirm        string
}

var gcPendingArgs gcPendingFlags

func init() {
	gcPendingCmd.Flags().Float64Var(&gcPendingArgs.olderThanHours, "older-than-hours", 0,
		"Only objects last modified more than this many hours ago are selected.")
	gcPendingCmd.Flags().StringVar(&gcPendingArgs.prefix, "prefix", "", "Prefix under pending/. Overrides EVIDENCE_GC_PREFIX.")
	gcPendingCmd.Flags().IntVar(&gcPendingArgs.maxDelete, "max-delete", 0, "Cap on deleted objects. Overrides EVIDENCE_GC_MAX_DELETE.")
	gcPendingCmd.Flags().Int64Var(&gcPendingArgs.maxBytes, "max-bytes", 0, "Cap on deleted bytes. Overrides EVIDENCE_GC_MAX_BYTES.")
	gcPendingCmd.Flags().BoolVar(&gcPendingArgs.dryRun, "dry-run", false, "Only list the selected objects.")
	gcPendingCmd.Flags().StringVar(&gcPendingArgs.confirm, "confirm", "", "Must be DELETE for a destructive run.")
	_ = gcPendingCmd.MarkFlagRequired("older-than-hours")
	gcCmd.AddCommand(gcPendingCmd)
	rootCmd.AddCommand(gcCmd)
}

func gcPendingCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	cfg := loadConfig()
	store, err := openStore(ctx, cfg, "")
	if err != nil {
		return err
	}

	res, err := gc.NewCollector(store, cfg.GC, clock).Run(ctx, gc.Options{
		Prefix:         gcPendingArgs.prefix,
		OlderThanHours: gcPendingArgs.olderThanHours,
		MaxDelete:      gcPendingArgs.maxDelete,
		MaxBytes:       gcPendingArgs.maxBytes,
		DryRun:         gcPendingArgs.dryRun,
		Confirm:        gcPendingArgs.confirm,
	})
	if err != nil {
		return err
	}

	return printJSON(res)
}
