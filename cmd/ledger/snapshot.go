package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/kashguard/go-evidence/internal/evidence/snapshot"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errSnapshotFindings = errors.New("snapshot chain verification reported findings")

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Generate and verify signed key-lifecycle snapshots",
}

var snapshotGenerateCmd = &cobra.Command{
	Use:       "generate [daily|weekly]",
	Short:     "Generate the snapshot of the last completed period",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(snapshot.KindDaily), string(snapshot.KindWeekly)},
	RunE:      snapshotGenerateCmdRun,
}

var snapshotVerifyCmd = &cobra.Command{
	Use:   "verify [all|latest]",
	Short: "Verify hashes, signatures and links of the snapshot chain",
	Example: `  # Verify the whole chain, exits non-zero on any finding
  ledger snapshot verify all`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{snapshot.ModeAll, snapshot.ModeLatest},
	RunE:      snapshotVerifyCmdRun,
}

func init() {
	snapshotCmd.AddCommand(snapshotGenerateCmd, snapshotVerifyCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func snapshotGenerateCmdRun(cmd *cobra.Command, args []string) error {
	kind, err := snapshot.ParseKind(args[0])
	if err != nil {
		return err
	}

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

	var counter snapshot.EventCounter
	if cfg.Snapshot.EventsDSN != "" {
		pg, err := snapshot.OpenPostgresCounter(ctx, cfg.Snapshot.EventsDSN)
		if err != nil {
			return fmt.Errorf("unable to open operational events store: %w", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close operational events store")
			}
		}()
		counter = pg
	}

	res, err := snapshot.NewBuilder(store, svc.keys, svc.policy, svc.signer, counter, svc.audit, cfg.Snapshot, clock).
		Generate(ctx, kind)
	if err != nil {
		return err
	}
	if !res.Created {
		rootCmd.PrintErrln("►", "snapshot for this period already exists", res.Key)
	}

	return printJSON(res)
}

func snapshotVerifyCmdRun(cmd *cobra.Command, args []string) error {
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

	report, err := snapshot.NewVerifier(store, svc.signer).Verify(ctx, args[0])
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%w: %d finding(s)", errSnapshotFindings, len(report.Findings))
	}

	return nil
}
