package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/backend/api"
	"evmwalletkit/internal/backend/spv"
	"evmwalletkit/internal/chainparams"
	"evmwalletkit/internal/cryptoprim"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/walletsync"
	"evmwalletkit/internal/werr"
)

func registerPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("backend", "api", "back-end to drive: api or spv")
	flags.String("network", "ropsten", "chain parameters: mainnet or ropsten")
	flags.String("address", "", "account address to track")
	flags.Uint64("chain-id", 3, "EIP-155 chain id for signing")

	flags.String("rpc-url", "", "JSON-RPC endpoint (api backend)")
	flags.String("txindex-url", "", "Etherscan-style transaction-index endpoint (api backend)")
	flags.String("txindex-key", "", "transaction-index API key (api backend)")
	flags.Duration("poll-interval", time.Second, "poll cadence (api backend)")

	flags.String("peer-addr", "", "host:port of the pinned LES peer (spv backend)")
	flags.String("local-key", "", "hex-encoded local node private key (spv backend)")
	flags.String("remote-pubkey", "", "hex-encoded remote peer static public key, uncompressed (spv backend)")
}

// buildController assembles a Controller and its backend from persistent
// flags, but does not Start it.
func buildController(cmd *cobra.Command) (*walletsync.Controller, walletsync.Backend, error) {
	flags := cmd.Flags()

	addressStr, _ := flags.GetString("address")
	account, err := addr.Validate(addressStr)
	if err != nil {
		return nil, nil, err
	}
	chainID, _ := flags.GetUint64("chain-id")
	networkName, _ := flags.GetString("network")
	params, ok := chainparams.ByName(networkName)
	if !ok {
		return nil, nil, werr.New(werr.Validation, "walletkit: unknown network "+networkName)
	}

	st := store.NewMemStore()
	controller := walletsync.NewController(st, chainID, logger)

	kind, _ := flags.GetString("backend")
	switch kind {
	case "api":
		rpcURL, _ := flags.GetString("rpc-url")
		txURL, _ := flags.GetString("txindex-url")
		txKey, _ := flags.GetString("txindex-key")
		pollInterval, _ := flags.GetDuration("poll-interval")

		rpc := api.NewRPCClient(rpcURL, 10*time.Second)
		txIndex := api.NewTxIndexClient(txURL, txKey, 10*time.Second)
		backend := api.NewBackend(rpc, txIndex, st, account, pollInterval, logger)
		return controller, backend, nil
	case "spv":
		peerAddr, _ := flags.GetString("peer-addr")
		localKeyHex, _ := flags.GetString("local-key")
		remotePubHex, _ := flags.GetString("remote-pubkey")

		localKey, err := cryptoprim.PrivateKeyFromHex(localKeyHex)
		if err != nil {
			return nil, nil, err
		}
		remotePub, err := cryptoprim.PublicKeyFromHex(remotePubHex)
		if err != nil {
			return nil, nil, err
		}
		backend := spv.NewBackend(peerAddr, localKey, remotePub, params, account, st, logger)
		return controller, backend, nil
	default:
		return nil, nil, werr.New(werr.Validation, "walletkit: unknown backend "+kind+" (want api or spv)")
	}
}

// startController builds and starts a controller+backend pair, returning a
// cancel func that stops the backend within its bounded deadline.
func startController(cmd *cobra.Command) (*walletsync.Controller, func(), error) {
	controller, backend, err := buildController(cmd)
	if err != nil {
		return nil, nil, err
	}
	ctx := context.Background()
	if err := controller.Start(ctx, backend); err != nil {
		return nil, nil, err
	}
	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := controller.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("walletkit: backend stop")
		}
	}
	return controller, stop, nil
}
