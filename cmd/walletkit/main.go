// Command walletkit is a demo CLI wiring the sync controller (internal/
// walletsync) against either the API or the SPV back-end, in the teacher's
// cobra root-command-plus-subcommands style (cmd/synnergy/main.go).
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logger = logrus.StandardLogger()

func main() {
	rootCmd := &cobra.Command{Use: "walletkit", Short: "Ethereum wallet kit demo CLI"}
	registerPersistentFlags(rootCmd)

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(swapCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Error("walletkit: command failed")
		os.Exit(1)
	}
}
