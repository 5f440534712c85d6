package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/cryptoprim"
	"evmwalletkit/internal/txsign"
	"evmwalletkit/internal/uniswap"
	"evmwalletkit/internal/werr"
)

func swapCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "swap", Short: "Uniswap V2 trade planning"}
	cmd.AddCommand(swapQuoteCmd())
	cmd.AddCommand(swapSendCmd())
	return cmd
}

func swapQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote <amount-in>",
		Short: "quote a multi-hop exact-in trade along --path",
		Args:  cobra.ExactArgs(1),
		RunE:  runSwapQuote,
	}
	addSwapPathFlags(cmd)
	return cmd
}

func swapSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <amount-in> <amount-out-min>",
		Short: "plan and broadcast an exact-in swap along --path",
		Args:  cobra.ExactArgs(2),
		RunE:  runSwapSend,
	}
	addSwapPathFlags(cmd)
	cmd.Flags().String("router", "", "router contract address")
	cmd.Flags().String("to", "", "swap recipient address")
	cmd.Flags().String("privkey", "", "hex-encoded sender private key")
	cmd.Flags().Int64("gas-price", 20_000_000_000, "gas price in wei")
	cmd.Flags().Bool("supporting-fee", false, "use the SupportingFeeOnTransferTokens variant")
	cmd.Flags().Uint64("deadline", 0, "unix deadline for the swap call")
	return cmd
}

func addSwapPathFlags(cmd *cobra.Command) {
	cmd.Flags().String("path", "", "comma-separated token addresses, native sentinel is the zero address")
	cmd.Flags().String("factory", "", "Uniswap V2 factory address")
	cmd.Flags().String("init-code-hash", "", "hex-encoded 32-byte pair init code hash")
}

func parsePath(cmd *cobra.Command) ([]addr.Address, error) {
	pathFlag, _ := cmd.Flags().GetString("path")
	parts := strings.Split(pathFlag, ",")
	if len(parts) < 2 {
		return nil, werr.New(werr.Validation, "walletkit: --path needs at least two tokens")
	}
	path := make([]addr.Address, len(parts))
	for i, p := range parts {
		if p == "0x0000000000000000000000000000000000000000" {
			path[i] = uniswap.Native
			continue
		}
		a, err := addr.Validate(p)
		if err != nil {
			return nil, err
		}
		path[i] = a
	}
	return path, nil
}

func parseInitCodeHash(cmd *cobra.Command) ([32]byte, error) {
	s, _ := cmd.Flags().GetString("init-code-hash")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return [32]byte{}, werr.New(werr.Validation, "walletkit: --init-code-hash must be 32 bytes of hex")
	}
	var out [32]byte
	if _, err := fmt.Sscanf(s, "%x", &out); err != nil {
		return [32]byte{}, werr.Wrap(werr.Validation, "walletkit: --init-code-hash", err)
	}
	return out, nil
}

// fetchPairs builds one Pair per consecutive hop in path by deriving its
// CREATE2 address and fetching live reserves through the running
// controller's Call — the trade planner has no RPC/RLPx path of its own
// (§4.11: "sits above the controller, using only its read/send
// operations"). Controller satisfies uniswap.Caller structurally.
func fetchPairs(ctx context.Context, caller uniswap.Caller, factory addr.Address, initCodeHash [32]byte, path []addr.Address) ([]uniswap.Pair, error) {
	pairs := make([]uniswap.Pair, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		pair, err := uniswap.NewPair(ctx, caller, factory, path[i], path[i+1], initCodeHash)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func runSwapQuote(cmd *cobra.Command, args []string) error {
	amountIn, ok := new(big.Int).SetString(args[0], 10)
	if !ok {
		return werr.New(werr.Validation, "walletkit: invalid amount-in")
	}
	path, err := parsePath(cmd)
	if err != nil {
		return err
	}
	factoryStr, _ := cmd.Flags().GetString("factory")
	factory, err := addr.Validate(factoryStr)
	if err != nil {
		return err
	}
	initCodeHash, err := parseInitCodeHash(cmd)
	if err != nil {
		return err
	}

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

	pairs, err := fetchPairs(ctx, controller, factory, initCodeHash, path)
	if err != nil {
		return err
	}

	trades := uniswap.TradeExactIn(pairs, path[0], amountIn, path[len(path)-1], uniswap.DefaultMaxHops)
	best, ok := uniswap.SelectBestExactIn(trades)
	if !ok {
		return werr.New(werr.State, "walletkit: no route found along the given path")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "amountOut: %s (via %d hop(s))\n", best.AmountOut, len(best.Path))
	return nil
}

func runSwapSend(cmd *cobra.Command, args []string) error {
	amountIn, ok := new(big.Int).SetString(args[0], 10)
	if !ok {
		return werr.New(werr.Validation, "walletkit: invalid amount-in")
	}
	amountOutMin, ok := new(big.Int).SetString(args[1], 10)
	if !ok {
		return werr.New(werr.Validation, "walletkit: invalid amount-out-min")
	}
	path, err := parsePath(cmd)
	if err != nil {
		return err
	}
	routerStr, _ := cmd.Flags().GetString("router")
	router, err := addr.Validate(routerStr)
	if err != nil {
		return err
	}
	toStr, _ := cmd.Flags().GetString("to")
	to, err := addr.Validate(toStr)
	if err != nil {
		return err
	}
	privHex, _ := cmd.Flags().GetString("privkey")
	priv, err := cryptoprim.PrivateKeyFromHex(privHex)
	if err != nil {
		return err
	}
	supportingFee, _ := cmd.Flags().GetBool("supporting-fee")
	deadline, _ := cmd.Flags().GetUint64("deadline")
	gasPrice, _ := cmd.Flags().GetInt64("gas-price")

	req := uniswap.SwapRequest{
		TokenIn:       path[0],
		TokenOut:      path[len(path)-1],
		Path:          path,
		AmountIn:      amountIn,
		AmountOutMin:  amountOutMin,
		To:            to,
		Deadline:      deadline,
		SupportingFee: supportingFee,
	}
	calls, err := uniswap.BuildSwapCalldata(req, router)
	if err != nil {
		return err
	}

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

	for i, call := range calls {
		callTo := router
		value := big.NewInt(0)
		if i == len(calls)-1 && req.TokenIn == uniswap.Native {
			value = amountIn
		}
		if i < len(calls)-1 {
			callTo = req.TokenIn // the ERC-20 contract being approved
		}
		raw := txsign.Build(big.NewInt(gasPrice), 150000, callTo, value, call)
		tx, err := controller.Send(ctx, raw, priv)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent tx %x\n", tx.Hash)
	}
	return nil
}
