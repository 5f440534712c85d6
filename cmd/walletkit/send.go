package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/cryptoprim"
	"evmwalletkit/internal/txsign"
	"evmwalletkit/internal/werr"
)

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <to> <value-wei>",
		Short: "sign and broadcast a native value transfer",
		Args:  cobra.ExactArgs(2),
		RunE:  runSend,
	}
	cmd.Flags().String("privkey", "", "hex-encoded sender private key")
	cmd.Flags().Int64("gas-price", 20_000_000_000, "gas price in wei")
	cmd.Flags().Uint64("gas-limit", 21000, "gas limit")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	to, err := addr.Validate(args[0])
	if err != nil {
		return err
	}
	value, ok := new(big.Int).SetString(args[1], 10)
	if !ok {
		return werr.New(werr.Validation, "walletkit: invalid value: "+args[1])
	}

	privHex, _ := cmd.Flags().GetString("privkey")
	priv, err := cryptoprim.PrivateKeyFromHex(privHex)
	if err != nil {
		return err
	}
	gasPrice, _ := cmd.Flags().GetInt64("gas-price")
	gasLimit, _ := cmd.Flags().GetUint64("gas-limit")

	controller, backend, err := buildController(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := controller.Start(ctx, backend); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		controller.Stop(stopCtx)
	}()

	raw := txsign.Build(big.NewInt(gasPrice), gasLimit, to, value, nil)
	tx, err := controller.Send(ctx, raw, priv)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent tx %x\n", tx.Hash)
	return nil
}
