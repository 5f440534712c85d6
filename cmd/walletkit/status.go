package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"evmwalletkit/internal/store"
	"evmwalletkit/internal/walletsync"
	"evmwalletkit/internal/werr"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "start the configured back-end and print balance once synced",
		RunE:  runStatus,
	}
	cmd.Flags().Duration("timeout", 30*time.Second, "how long to wait for Synced before giving up")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	controller, stop, err := startController(cmd)
	if err != nil {
		return err
	}
	defer stop()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	syncCh, unsub := controller.SubscribeSyncState()
	defer unsub()

	deadline := time.After(timeout)
	for {
		select {
		case state := <-syncCh:
			fmt.Fprintf(cmd.OutOrStdout(), "syncState: %s\n", state.Kind)
			if state.Kind == walletsync.SyncStateSynced {
				balance, err := controller.Balance(store.NativeContract)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "lastBlockHeight: %d\nbalance: %s\n", controller.LastBlockHeight(), balance)
				return nil
			}
		case <-deadline:
			return werr.New(werr.Cancelled, "walletkit: status timed out before Synced")
		}
	}
}
