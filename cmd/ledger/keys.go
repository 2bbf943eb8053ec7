package main

import (
	"context"
	"fmt"

	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage signing keys through dual-control lifecycle requests",
}

var keysBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first active signing key",
	Args:  cobra.NoArgs,
	RunE:  keysBootstrapCmdRun,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List signing keys without private material",
	Args:  cobra.NoArgs,
	RunE:  keysListCmdRun,
}

var keysRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Create, decide and execute lifecycle requests",
}

var keysRequestCreateCmd = &cobra.Command{
	Use:   "create [ROTATE|REVOKE]",
	Short: "Open a lifecycle request",
	Example: `  # Request a rotation
  ledger keys request create ROTATE --principal alice --reason "scheduled"

  # Request revocation of a key
  ledger keys request create REVOKE --principal alice --target key-123 --reason "compromised"`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(key.ActionRotate), string(key.ActionRevoke)},
	RunE:      keysRequestCreateCmdRun,
}

var keysRequestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lifecycle requests",
	Args:  cobra.NoArgs,
	RunE:  keysRequestListCmdRun,
}

var keysRequestApproveCmd = &cobra.Command{
	Use:   "approve [REQUEST_ID]",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  keysRequestApproveCmdRun,
}

var keysRequestRejectCmd = &cobra.Command{
	Use:   "reject [REQUEST_ID]",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  keysRequestRejectCmdRun,
}

var keysRequestExecuteCmd = &cobra.Command{
	Use:   "execute [REQUEST_ID]",
	Short: "Execute an approved request",
	Args:  cobra.ExactArgs(1),
	RunE:  keysRequestExecuteCmdRun,
}

type keysFlags struct {
	principal string
	target    string
	reason    string
	status    string
}

var keysArgs keysFlags

func init() {
	keysCmd.PersistentFlags().StringVar(&keysArgs.principal, "principal", "",
		"Identity of the operator performing the action.")
	keysRequestCreateCmd.Flags().StringVar(&keysArgs.target, "target", "", "Key to revoke.")
	keysRequestCreateCmd.Flags().StringVar(&keysArgs.reason, "reason", "", "Reason recorded with the request.")
	keysRequestRejectCmd.Flags().StringVar(&keysArgs.reason, "reason", "", "Reason recorded with the rejection.")
	keysRequestListCmd.Flags().StringVar(&keysArgs.status, "status", "", "Only list requests in this status.")

	keysRequestCmd.AddCommand(keysRequestCreateCmd, keysRequestListCmd, keysRequestApproveCmd,
		keysRequestRejectCmd, keysRequestExecuteCmd)
	keysCmd.AddCommand(keysBootstrapCmd, keysListCmd, keysRequestCmd)
	rootCmd.AddCommand(keysCmd)
}

// withKeys runs fn against the key service of the configured store.
func withKeys(fn func(ctx context.Context, keys key.Service) (any, error)) error {
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

	out, err := fn(ctx, svc.keys)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func requirePrincipal() error {
	if keysArgs.principal == "" {
		return fmt.Errorf("--principal is required")
	}
	return nil
}

func keysBootstrapCmdRun(cmd *cobra.Command, args []string) error {
	if err := requirePrincipal(); err != nil {
		return err
	}
	return withKeys(func(ctx context.Context, keys key.Service) (any, error) {
		return keys.Bootstrap(ctx, keysArgs.principal)
	})
}

func keysListCmdRun(cmd *cobra.Command, args []string) error {
	return withKeys(func(ctx context.Context, keys key.Service) (any, error) {
		return keys.ListKeys(ctx)
	})
}

func keysRequestCreateCmdRun(cmd *cobra.Command, args []string) error {
	if err := requirePrincipal(); err != nil {
		return err
	}
	return withKeys(func(ctx context.Context, keys key.Service) (any, error) {
		return keys.CreateRequest(ctx, &key.CreateRequest{
			Action:      key.Action(args[0]),
			TargetKeyID: keysArgs.target,
			Reason:      keysArgs.reason,
			InitiatorID: keysArgs.principal,
		})
	})
}

func keysRequestListCmdRun(cmd *cobra.Command, args []string) error {
	return withKeys(func(ctx context.Context, keys key.Service) (any, error) {
		return keys.ListRequests(ctx, &key.RequestFilter{Status: key.RequestStatus(keysArgs.status)})
	})
}

func keysRequestApproveCmdRun(cmd *cobra.Command, args []string) error {
	if err := requirePrincipal(); err != nil {
		return err
	}
	return withKeys(func(ctx context.Context, keys key.Service) (any, error) {
		return keys.Approve(ctx, args[0], keysArgs.principal)
	})
}

func keysRequestRejectCmdRun(cmd *cobra.Command, args []string) error {
	if err := requirePrincipal(); err != nil {
		return err
	}
	return withKeys(func(ctx context.Context, keys key.Service) (any, error) {
		return keys.Reject(ctx, args[0], keysArgs.principal, keysArgs.reason)
	})
}

func keysRequestExecuteCmdRun(cmd *cobra.Command, args []string) error {
	if err := requirePrincipal(); err != nil {
		return err
	}
	return withKeys(func(ctx context.Context, keys key.Service) (any, error) {
		return keys.Execute(ctx, args[0], keysArgs.principal)
	})
}
