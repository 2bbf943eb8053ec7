package main

import (
	"context"

	"github.com/kashguard/go-evidence/internal/evidence/enrich"
	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fold anchoring issue summaries from evidence packs into ledger-enriched",
	Example: `  # Enrich one week of entries
  ledger enrich --from 2025-01-01 --to 2025-01-07 --ledger-bucket evidence --packs-bucket evidence-packs`,
	Args: cobra.NoArgs,
	RunE: enrichCmdRun,
}

type enrichFlags struct {
	from         string
	to           string
	ledgerBucket string
	packsBucket  string
	force        bool
}

var enrichArgs enrichFlags

func init() {
	enrichCmd.Flags().StringVar(&enrichArgs.from, "from", "", "First day as YYYY-MM-DD.")
	enrichCmd.Flags().StringVar(&enrichArgs.to, "to", "", "Last day as YYYY-MM-DD (inclusive).")
	enrichCmd.Flags().StringVar(&enrichArgs.ledgerBucket, "ledger-bucket", "", "Bucket holding ledger entries.")
	enrichCmd.Flags().StringVar(&enrichArgs.packsBucket, "packs-bucket", "", "Bucket holding evidence packs.")
	enrichCmd.Flags().BoolVar(&enrichArgs.force, "force", false, "Rewrite entries that are already enriched.")
	_ = enrichCmd.MarkFlagRequired("from")
	_ = enrichCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(enrichCmd)
}

func enrichCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	from, err := parseDay(enrichArgs.from)
	if err != nil {
		return err
	}
	to, err := parseDay(enrichArgs.to)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	ledgerStore, err := openStore(ctx, cfg, enrichArgs.ledgerBucket)
	if err != nil {
		return err
	}
	packsStore, err := openStore(ctx, cfg, enrichArgs.packsBucket)
	if err != nil {
		return err
	}

	res, err := enrich.NewEnricher(ledgerStore, packsStore, cfg.Ledger, clock).Run(ctx, enrich.Options{
		From:  from,
		To:    to,
		Force: enrichArgs.force,
	})
	if err != nil {
		return err
	}

	return printJSON(res)
}
