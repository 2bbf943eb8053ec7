package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/spf13/cobra"
)

var errExportInvalid = errors.New("export verification failed")

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Sign and verify JSON evidence exports",
}

var exportSignCmd = &cobra.Command{
	Use:   "sign [FILE]",
	Short: "Stamp export_hash and sign it with the active key",
	Args:  cobra.ExactArgs(1),
	RunE:  exportSignCmdRun,
}

var exportVerifyCmd = &cobra.Command{
	Use:   "verify [FILE]",
	Short: "Verify the content hash and optional signature of an export",
	Example: `  # Content only
  ledger export verify ./export.json

  # Content and signature
  ledger export verify ./export.json --signature "$SIG" --key-id key-123`,
	Args: cobra.ExactArgs(1),
	RunE: exportVerifyCmdRun,
}

type exportFlags struct {
	signature string
	keyID     string
}

var exportArgs exportFlags

func init() {
	exportVerifyCmd.Flags().StringVar(&exportArgs.signature, "signature", "", "Base64 signature over export_hash.")
	exportVerifyCmd.Flags().StringVar(&exportArgs.keyID, "key-id", "", "Key that produced the signature.")
	exportCmd.AddCommand(exportSignCmd, exportVerifyCmd)
	rootCmd.AddCommand(exportCmd)
}

func readExport(path string) (json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read export: %w", err)
	}
	return raw, nil
}

func exportSignCmdRun(cmd *cobra.Command, args []string) error {
	raw, err := readExport(args[0])
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

	signed, err := svc.signer.SignExport(ctx, raw)
	if err != nil {
		return err
	}
	return printJSON(signed)
}

func exportVerifyCmdRun(cmd *cobra.Command, args []string) error {
	raw, err := readExport(args[0])
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

	res, err := svc.signer.Verify(ctx, &sign.VerifyRequest{
		ExportJSON: raw,
		Signature:  exportArgs.signature,
		KeyID:      exportArgs.keyID,
	})
	if err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.OK {
		return errExportInvalid
	}
	return nil
}
