package main

import (
	"context"
	"fmt"

	"github.com/kashguard/go-evidence/internal/evidence/rollup"
	"github.com/spf13/cobra"
)

var rollupProveCmd = &cobra.Command{
	Use:   "prove",
	Short: "Print and check the Merkle inclusion proof of one ledger entry",
	Args:  cobra.NoArgs,
	RunE:  rollupProveCmdRun,
}

type rollupProveFlags struct {
	date string
	key  string
}

var rollupProveArgs rollupProveFlags

func init() {
	rollupProveCmd.Flags().StringVar(&rollupProveArgs.date, "date", "", "Day of the rollup as YYYY-MM-DD.")
	rollupProveCmd.Flags().StringVar(&rollupProveArgs.key, "key", "", "Object key of the ledger entry.")
	_ = rollupProveCmd.MarkFlagRequired("date")
	_ = rollupProveCmd.MarkFlagRequired("key")
	rollupCmd.AddCommand(rollupProveCmd)
}

func rollupProveCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	day, err := parseDay(rollupProveArgs.date)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, loadConfig(), "")
	if err != nil {
		return err
	}

	proof, err := rollup.Prove(ctx, store, day, rollupProveArgs.key)
	if err != nil {
		return err
	}
	if !rollup.VerifyProof(proof) {
		return fmt.Errorf("proof for %s does not reproduce the rollup root", rollupProveArgs.key)
	}

	return printJSON(proof)
}
