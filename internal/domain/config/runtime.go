package config

import (
	"time"
)

// RuntimeConfig represents the complete runtime configuration
// This is injected into use cases and contains all resolved settings
type RuntimeConfig struct {
	// Core settings
	ProjectRoot string
	DataDir     string

	// Execution settings
	Debug   bool
	JSON    bool
	Timeout time.Duration

	// Ecosystem and Network select the session the CLI operates on
	Ecosystem string
	Network   string

	Hardhat HardhatConfig
	Test    TestConfig

	// RPCEndpoints are named upstream URLs, already env-expanded
	RPCEndpoints map[string]string

	// ConfigSource is "hardhat.toml" or "defaults"
	ConfigSource string
}

// HardhatConfig is the [hardhat] section of hardhat.toml
type HardhatConfig struct {
	Host string `toml:"host"`
	// Port is deprecated in favour of Host
	Port               string        `toml:"port"`
	ManageProcess      bool          `toml:"manage_process"`
	BinPath            string        `toml:"bin_path"`
	RequestTimeout     time.Duration `toml:"-"`
	ForkRequestTimeout time.Duration `toml:"-"`
	// StartTimeout bounds the wait for a spawned node to become healthy;
	// forks replay upstream state and get ForkStartTimeout
	StartTimeout       time.Duration `toml:"-"`
	ForkStartTimeout   time.Duration `toml:"-"`
	ProcessAttempts    int           `toml:"process_attempts"`
	HardhatConfigFile  string        `toml:"hardhat_config_file"`
	EVMVersion         string        `toml:"evm_version"`

	// Fork maps ecosystem -> network -> settings
	Fork map[string]map[string]ForkSettings `toml:"fork"`
}

// ForkSettings configures one forked network
type ForkSettings struct {
	UpstreamProvider         string  `toml:"upstream_provider"`
	BlockNumber              *uint64 `toml:"block_number"`
	Host                     string  `toml:"host"`
	EnableHardhatDeployments bool    `toml:"enable_hardhat_deployments"`
}

// TestConfig is the [test] section, the accounts the node is seeded with
type TestConfig struct {
	Mnemonic         string `toml:"mnemonic"`
	NumberOfAccounts int    `toml:"number_of_accounts"`
	// Balance accepts anything the unit converter understands, e.g. "10000 ETH"
	Balance string `toml:"balance"`
	HDPath  string `toml:"hd_path"`
}

// ForkSettingsFor returns the fork table entry for a network, if any
func (h HardhatConfig) ForkSettingsFor(ecosystem, network string) (ForkSettings, bool) {
	networks, ok := h.Fork[ecosystem]
	if !ok {
		return ForkSettings{}, false
	}
	settings, ok := networks[network]
	return settings, ok
}
