package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/domain/config"
)

const (
	// ConfigFileName is the project configuration file
	ConfigFileName = "hardhat.toml"

	DefaultMnemonic         = "test test test test test test test test test test test junk"
	DefaultNumberOfAccounts = 10
	DefaultBalance          = "10000 ETH"
	DefaultHDPath           = "m/44'/60'/0'/0"
	DefaultProcessAttempts  = 5

	DefaultRequestTimeout     = 30 * time.Second
	DefaultForkRequestTimeout = 300 * time.Second
	DefaultStartTimeout       = 20 * time.Second
	DefaultForkStartTimeout   = 120 * time.Second
)

// HardhatTOML represents the raw hardhat.toml structure
type HardhatTOML struct {
	Hardhat      rawHardhat        `toml:"hardhat"`
	Test         rawTest           `toml:"test"`
	RPCEndpoints map[string]string `toml:"rpc_endpoints"`
}

// pointer fields tell an explicit zero apart from an absent key
type rawHardhat struct {
	Host               string                                    `toml:"host"`
	Port               string                                    `toml:"port"`
	ManageProcess      *bool                                     `toml:"manage_process"`
	BinPath            string                                    `toml:"bin_path"`
	RequestTimeout     *int64                                    `toml:"request_timeout"`
	ForkRequestTimeout *int64                                    `toml:"fork_request_timeout"`
	StartTimeout       *int64                                    `toml:"start_timeout"`
	ForkStartTimeout   *int64                                    `toml:"fork_start_timeout"`
	ProcessAttempts    *int                                      `toml:"process_attempts"`
	HardhatConfigFile  string                                    `toml:"hardhat_config_file"`
	EVMVersion         string                                    `toml:"evm_version"`
	Fork               map[string]map[string]config.ForkSettings `toml:"fork"`
}

type rawTest struct {
	Mnemonic         string `toml:"mnemonic"`
	NumberOfAccounts *int   `toml:"number_of_accounts"`
	Balance          string `toml:"balance"`
	HDPath           string `toml:"hd_path"`
}

// loadEnvFiles loads .env then .env.local; values already in the
// environment win.
func loadEnvFiles(projectRoot string, log *slog.Logger) {
	for _, name := range []string{".env", ".env.local"} {
		envFile := filepath.Join(projectRoot, name)
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			log.Warn("failed to load env file", "path", envFile, "error", err)
		}
	}
}

// loadHardhatConfig reads hardhat.toml from the project root. A missing
// file yields the defaults.
func loadHardhatConfig(projectRoot string) (*HardhatTOML, bool, error) {
	var raw HardhatTOML
	path := filepath.Join(projectRoot, ConfigFileName)
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &raw, false, nil
		}
		return nil, false, fmt.Errorf("failed to parse %s: %w", ConfigFileName, err)
	}
	return &raw, true, nil
}

func (raw *HardhatTOML) hardhatConfig() (config.HardhatConfig, error) {
	h := raw.Hardhat
	cfg := config.HardhatConfig{
		Host:               h.Host,
		Port:               h.Port,
		ManageProcess:      true,
		BinPath:            h.BinPath,
		RequestTimeout:     DefaultRequestTimeout,
		ForkRequestTimeout: DefaultForkRequestTimeout,
		StartTimeout:       DefaultStartTimeout,
		ForkStartTimeout:   DefaultForkStartTimeout,
		ProcessAttempts:    DefaultProcessAttempts,
		HardhatConfigFile:  h.HardhatConfigFile,
		EVMVersion:         h.EVMVersion,
		Fork:               h.Fork,
	}
	if h.ManageProcess != nil {
		cfg.ManageProcess = *h.ManageProcess
	}
	timeouts := []struct {
		key   string
		value *int64
		dst   *time.Duration
	}{
		{"hardhat.request_timeout", h.RequestTimeout, &cfg.RequestTimeout},
		{"hardhat.fork_request_timeout", h.ForkRequestTimeout, &cfg.ForkRequestTimeout},
		{"hardhat.start_timeout", h.StartTimeout, &cfg.StartTimeout},
		{"hardhat.fork_start_timeout", h.ForkStartTimeout, &cfg.ForkStartTimeout},
	}
	for _, t := range timeouts {
		if t.value == nil {
			continue
		}
		if *t.value <= 0 {
			return cfg, &domain.ConfigError{Key: t.key, Message: "must be a positive number of seconds"}
		}
		*t.dst = time.Duration(*t.value) * time.Second
	}
	if h.ProcessAttempts != nil {
		if *h.ProcessAttempts < 1 {
			return cfg, &domain.ConfigError{Key: "hardhat.process_attempts", Message: "must be at least 1"}
		}
		cfg.ProcessAttempts = *h.ProcessAttempts
	}
	return cfg, nil
}

func (raw *HardhatTOML) testConfig() config.TestConfig {
	t := raw.Test
	cfg := config.TestConfig{
		Mnemonic:         t.Mnemonic,
		NumberOfAccounts: DefaultNumberOfAccounts,
		Balance:          t.Balance,
		HDPath:           t.HDPath,
	}
	if cfg.Mnemonic == "" {
		cfg.Mnemonic = DefaultMnemonic
	}
	if t.NumberOfAccounts != nil {
		cfg.NumberOfAccounts = *t.NumberOfAccounts
	}
	if cfg.Balance == "" {
		cfg.Balance = DefaultBalance
	}
	if cfg.HDPath == "" {
		cfg.HDPath = DefaultHDPath
	}
	return cfg
}
