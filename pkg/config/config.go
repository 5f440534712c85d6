// Package config provides a reusable loader for wallet-kit configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.2.0
package config

import (
	"strings"

	"github.com/spf13/viper"

	"evmwalletkit/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.2.0"

// Config represents the unified configuration for a wallet-kit process. It
// mirrors the structure of an optional YAML file under ./config plus
// environment overrides (prefix WALLETKIT_).
type Config struct {
	Network struct {
		Name    string `mapstructure:"name" json:"name"`       // "mainnet" | "ropsten"
		Backend string `mapstructure:"backend" json:"backend"` // "api" | "spv"
		ChainID int64  `mapstructure:"chain_id" json:"chain_id"`
		Address string `mapstructure:"address" json:"address"` // account tracked by the sync controller
	} `mapstructure:"network" json:"network"`

	API struct {
		RPCEndpoint       string `mapstructure:"rpc_endpoint" json:"rpc_endpoint"`
		EtherscanEndpoint string `mapstructure:"etherscan_endpoint" json:"etherscan_endpoint"`
		EtherscanAPIKey   string `mapstructure:"etherscan_api_key" json:"etherscan_api_key"`
		PollIntervalMS    int    `mapstructure:"poll_interval_ms" json:"poll_interval_ms"`
	} `mapstructure:"api" json:"api"`

	SPV struct {
		PeerAddr     string `mapstructure:"peer_addr" json:"peer_addr"`         // host:port of the pinned LES peer
		LocalKey     string `mapstructure:"local_key" json:"local_key"`         // hex-encoded local node private key
		RemotePubkey string `mapstructure:"remote_pubkey" json:"remote_pubkey"` // hex-encoded peer static public key
	} `mapstructure:"spv" json:"spv"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	HTTP struct {
		Port string `mapstructure:"port" json:"port"`
	} `mapstructure:"http" json:"http"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Defaults applied before any file/env is read.
func setDefaults(v *viper.Viper) {
	v.SetDefault("network.name", "ropsten")
	v.SetDefault("network.backend", "api")
	v.SetDefault("api.rpc_endpoint", "https://ropsten.infura.io/v3/")
	v.SetDefault("api.etherscan_endpoint", "https://api-ropsten.etherscan.io/api")
	v.SetDefault("api.poll_interval_ms", 1000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.port", "8082")
	// Zero-value defaults register the remaining keys, so their
	// WALLETKIT_ environment overrides reach Unmarshal.
	v.SetDefault("network.chain_id", 0)
	v.SetDefault("network.address", "")
	v.SetDefault("api.etherscan_api_key", "")
	v.SetDefault("spv.peer_addr", "")
	v.SetDefault("spv.local_key", "")
	v.SetDefault("spv.remote_pubkey", "")
	v.SetDefault("logging.file", "")
}

// Load reads an optional config file (name "default", then env-named
// override if present) from ./config or ./cmd/config, applies
// WALLETKIT_-prefixed environment overrides, and returns the merged result.
// A missing config file is not an error: defaults + env apply on their own.
func Load(env string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("default")
	v.AddConfigPath("config")
	v.AddConfigPath("cmd/config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, utils.Wrap(err, "merge "+env+" config")
			}
		}
	}

	v.SetEnvPrefix("walletkit")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the WALLETKIT_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("WALLETKIT_ENV", ""))
}
