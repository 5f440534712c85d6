package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/backend/api"
	"evmwalletkit/internal/backend/spv"
	"evmwalletkit/internal/chainparams"
	"evmwalletkit/internal/cryptoprim"
	"evmwalletkit/internal/store"
	"evmwalletkit/internal/walletsync"
	"evmwalletkit/internal/werr"
	pkgconfig "evmwalletkit/pkg/config"
	"evmwalletkit/pkg/utils"
)

// loadConfig wraps pkg/config.Load the way the teacher's cmd/config wraps
// it for its CLI tools: one call, environment-selected by WALLETKIT_ENV,
// backed by an optional YAML file under ./config or ./cmd/config plus
// WALLETKIT_-prefixed environment overrides. godotenv seeds the process
// environment from an optional walletd/.env first (a missing file is not an
// error), the way the teacher's walletserver loads its own .env, before
// viper's AutomaticEnv reads it.
func loadConfig() (*pkgconfig.Config, error) {
	if err := godotenv.Load("walletd/.env"); err != nil {
		logrus.WithError(err).Debug("walletd: no .env file, using process environment")
	}
	return pkgconfig.Load(utils.EnvOrDefault("WALLETKIT_ENV", ""))
}

// buildController assembles a Controller and its backend from cfg, mirroring
// cmd/walletkit's flag-driven buildController but sourced from pkg/config's
// viper-backed settings instead of cobra flags.
func buildController(cfg *pkgconfig.Config, logger *logrus.Logger) (*walletsync.Controller, walletsync.Backend, error) {
	account, err := addr.Validate(cfg.Network.Address)
	if err != nil {
		return nil, nil, err
	}
	params, ok := chainparams.ByName(cfg.Network.Name)
	if !ok {
		return nil, nil, werr.New(werr.Validation, "walletd: unknown network "+cfg.Network.Name)
	}

	st := store.NewMemStore()
	controller := walletsync.NewController(st, uint64(cfg.Network.ChainID), logger)

	switch cfg.Network.Backend {
	case "api":
		pollInterval := time.Duration(cfg.API.PollIntervalMS) * time.Millisecond
		rpc := api.NewRPCClient(cfg.API.RPCEndpoint, 10*time.Second)
		txIndex := api.NewTxIndexClient(cfg.API.EtherscanEndpoint, cfg.API.EtherscanAPIKey, 10*time.Second)
		backend := api.NewBackend(rpc, txIndex, st, account, pollInterval, logger)
		return controller, backend, nil
	case "spv":
		localKey, err := cryptoprim.PrivateKeyFromHex(cfg.SPV.LocalKey)
		if err != nil {
			return nil, nil, err
		}
		remotePub, err := cryptoprim.PublicKeyFromHex(cfg.SPV.RemotePubkey)
		if err != nil {
			return nil, nil, err
		}
		backend := spv.NewBackend(cfg.SPV.PeerAddr, localKey, remotePub, params, account, st, logger)
		return controller, backend, nil
	default:
		return nil, nil, werr.New(werr.Validation, "walletd: unknown backend "+cfg.Network.Backend+" (want api or spv)")
	}
}
