package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var accountID uint

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync every active, sync-enabled account once",
		Long: `Pull recent mail for every active, sync-enabled account that supports
pulling, one account after another. Rules triggered by the new mail and the
sends they queue are processed before the command exits.

Use --account to sync a single account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, accountID)
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "Sync only this account ID")
	return cmd
}

func runSync(cmd *cobra.Command, accountID uint) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Workers pick up the rule evaluations queued by ingestion
	a.queue.Start(ctx)
	defer a.queue.Stop()

	out := cmd.OutOrStdout()
	if accountID != 0 {
		n, err := a.queue.SyncAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("account %d: %w", accountID, err)
		}
		fmt.Fprintf(out, "account %d: %d new emails\n", accountID, n)
		return nil
	}

	summary, err := a.queue.SyncAll(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("Sync finished",
		slog.Int("accounts", summary.Accounts),
		slog.Int("synced", summary.Synced),
		slog.Int("failed", summary.Failed))
	fmt.Fprintf(out, "accounts: %d, new emails: %d, failed: %d\n", summary.Accounts, summary.Synced, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d account(s) failed to sync", summary.Failed)
	}
	return nil
}
