package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/ledger"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an evidence pack and its ledger entry",
	Example: `  # Publish an inspection evidence pack
  ledger publish --pack ./wo-1042.zip --kind inspection_closed --subject WO-1042 --actor qa-lead

  # Publish and sign the pack hash with the active key
  ledger publish --pack ./wo-1042.zip --kind inspection_closed --sign`,
	Args: cobra.NoArgs,
	RunE: publishCmdRun,
}

type publishFlags struct {
	pack      string
	namespace string
	kind      string
	subject   string
	actor     string
	result    string
	sign      bool
}

var publishArgs publishFlags

func init() {
	publishCmd.Flags().StringVar(&publishArgs.pack, "pack", "", "Path to the evidence pack (zip).")
	publishCmd.Flags().StringVar(&publishArgs.namespace, "namespace", storage.NamespaceLedger, "Ledger namespace.")
	publishCmd.Flags().StringVar(&publishArgs.kind, "kind", "", "Entry kind.")
	publishCmd.Flags().StringVar(&publishArgs.subject, "subject", "", "Entry subject, e.g. a work order.")
	publishCmd.Flags().StringVar(&publishArgs.actor, "actor", "", "Actor that produced the evidence.")
	publishCmd.Flags().StringVar(&publishArgs.result, "result", "", "Outcome recorded in the entry.")
	publishCmd.Flags().BoolVar(&publishArgs.sign, "sign", false, "Sign the pack hash with the active key.")
	_ = publishCmd.MarkFlagRequired("pack")
	_ = publishCmd.MarkFlagRequired("kind")
	rootCmd.AddCommand(publishCmd)
}

func publishCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	data, err := os.ReadFile(publishArgs.pack)
	if err != nil {
		return fmt.Errorf("unable to read pack: %w", err)
	}

	cfg := loadConfig()
	store, err := openStore(ctx, cfg, "")
	if err != nil {
		return err
	}
	svc, err := newServices(cfg, store)
	if err != nil {
		return err
	}

	entry := &ledger.Entry{
		Kind:    publishArgs.kind,
		Subject: publishArgs.subject,
		Actor:   publishArgs.actor,
		Result:  publishArgs.result,
	}
	if publishArgs.sign {
		sig, err := svc.signer.SignDigest(ctx, canonical.SHA256Hex(data))
		if err != nil {
			return err
		}
		entry.Signature = &ledger.SignatureRef{KeyID: sig.KeyID, SignedAt: sig.SignedAt}
		entry.Details = map[string]any{"pack_signature": sig.Value}
	}

	res, err := svc.recorder.Record(ctx, publishArgs.namespace, entry,
		&ledger.Archive{Name: filepath.Base(publishArgs.pack), Data: data})
	if err != nil {
		return err
	}
	if res.DeadLettered {
		rootCmd.PrintErrln("⚠", "storage write failed, entry was dead-lettered for replay")
	}

	return printJSON(res)
}
