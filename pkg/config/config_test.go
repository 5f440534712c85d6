package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadAppliesDefaults(t *testing.T) {
	viper.Reset()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Name != "ropsten" {
		t.Fatalf("Network.Name = %q, want ropsten", cfg.Network.Name)
	}
	if cfg.Network.Backend != "api" {
		t.Fatalf("Network.Backend = %q, want api", cfg.Network.Backend)
	}
	if cfg.API.PollIntervalMS != 1000 {
		t.Fatalf("API.PollIntervalMS = %d, want 1000", cfg.API.PollIntervalMS)
	}
	if cfg.HTTP.Port != "8082" {
		t.Fatalf("HTTP.Port = %q, want 8082", cfg.HTTP.Port)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	viper.Reset()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	os.Setenv("WALLETKIT_NETWORK_NAME", "mainnet")
	os.Setenv("WALLETKIT_NETWORK_CHAIN_ID", "1")
	defer os.Unsetenv("WALLETKIT_NETWORK_NAME")
	defer os.Unsetenv("WALLETKIT_NETWORK_CHAIN_ID")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Name != "mainnet" {
		t.Fatalf("Network.Name = %q, want mainnet", cfg.Network.Name)
	}
	if cfg.Network.ChainID != 1 {
		t.Fatalf("Network.ChainID = %d, want 1", cfg.Network.ChainID)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	viper.Reset()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)

	dir := t.TempDir()
	if err := os.Mkdir(dir+"/config", 0o700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	yaml := []byte("network:\n  name: mainnet\n  backend: spv\nspv:\n  peer_addr: 10.0.0.1:30303\n")
	if err := os.WriteFile(dir+"/config/default.yaml", yaml, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Backend != "spv" {
		t.Fatalf("Network.Backend = %q, want spv", cfg.Network.Backend)
	}
	if cfg.SPV.PeerAddr != "10.0.0.1:30303" {
		t.Fatalf("SPV.PeerAddr = %q, want 10.0.0.1:30303", cfg.SPV.PeerAddr)
	}
}
