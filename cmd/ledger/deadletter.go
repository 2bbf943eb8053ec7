package main

import (
	"context"
	"fmt"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/deadletter"
	"github.com/spf13/cobra"
)

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect and maintain the local dead-letter queue",
}

var deadletterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print queue size, archives and alerts",
	Args:  cobra.NoArgs,
	RunE:  deadletterStatusCmdRun,
}

var deadletterRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Move the active queue file into a dated archive",
	Args:  cobra.NoArgs,
	RunE:  deadletterRotateCmdRun,
}

var deadletterCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete archives older than the retention period",
	Example: `  # Keep 30 days of archives
  ledger deadletter cleanup --retention-days 30`,
	Args: cobra.NoArgs,
	RunE: deadletterCleanupCmdRun,
}

var deadletterReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-publish dead-lettered entries to the blob store",
	Args:  cobra.NoArgs,
	RunE:  deadletterReplayCmdRun,
}

type deadletterFlags struct {
	dryRun        bool
	retentionDays int
}

var deadletterArgs deadletterFlags

func init() {
	for _, c := range []*cobra.Command{deadletterRotateCmd, deadletterCleanupCmd, deadletterReplayCmd} {
		c.Flags().BoolVar(&deadletterArgs.dryRun, "dry-run", false, "Report without changing anything.")
	}
	deadletterCleanupCmd.Flags().IntVar(&deadletterArgs.retentionDays, "retention-days", 0,
		"Archives older than this many days are deleted. Overrides EVIDENCE_DEAD_LETTER_RETENTION_DAYS.")

	deadletterCmd.AddCommand(deadletterStatusCmd, deadletterRotateCmd, deadletterCleanupCmd, deadletterReplayCmd)
	rootCmd.AddCommand(deadletterCmd)
}

func openQueue(cfg config.Server) (*deadletter.Queue, error) {
	q, err := api.NewDeadLetterQueue(cfg, clock)
	if err != nil {
		return nil, fmt.Errorf("unable to open dead-letter queue: %w", err)
	}
	return q, nil
}

func deadletterStatusCmdRun(cmd *cobra.Command, args []string) error {
	q, err := openQueue(loadConfig())
	if err != nil {
		return err
	}
	status, err := q.Status()
	if err != nil {
		return err
	}
	for _, a := range status.Alerts {
		rootCmd.PrintErrln("⚠", a.Message)
	}
	return printJSON(status)
}

func deadletterRotateCmdRun(cmd *cobra.Command, args []string) error {
	q, err := openQueue(loadConfig())
	if err != nil {
		return err
	}
	res, err := q.Rotate(deadletterArgs.dryRun)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func deadletterCleanupCmdRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	q, err := openQueue(cfg)
	if err != nil {
		return err
	}
	days := deadletterArgs.retentionDays
	if days == 0 {
		days = cfg.DeadLetter.RetentionDays
	}
	res, err := q.Cleanup(days, deadletterArgs.dryRun)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func deadletterReplayCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	cfg := loadConfig()
	store, err := openStore(ctx, cfg, "")
	if err != nil {
		return err
	}
	svc, err := newServices(cfg, store)
	if err != nil {
		return err
	}

	res, err := svc.queue.Replay(ctx, svc.recorder, deadletterArgs.dryRun)
	if err != nil {
		return err
	}
	return printJSON(res)
}
