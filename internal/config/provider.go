package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/trebuchet-org/treb-hardhat/internal/domain/config"
)

// projectMarkers identify a project root, checked in order
var projectMarkers = []string{
	ConfigFileName,
	"hardhat.config.js",
	"hardhat.config.ts",
	"package.json",
}

// Provider creates RuntimeConfig for Wire dependency injection
func Provider(v *viper.Viper) (*config.RuntimeConfig, error) {
	return Load(v, slog.Default())
}

// Load resolves the project root and builds the runtime config from
// hardhat.toml, .env files and viper overrides
func Load(v *viper.Viper, log *slog.Logger) (*config.RuntimeConfig, error) {
	projectRoot := v.GetString("project_root")
	if projectRoot == "" {
		var err error
		projectRoot, err = FindProjectRoot()
		if err != nil {
			return nil, fmt.Errorf("failed to find project root: %w", err)
		}
	}

	loadEnvFiles(projectRoot, log)

	raw, found, err := loadHardhatConfig(projectRoot)
	if err != nil {
		return nil, err
	}

	hardhat, err := raw.hardhatConfig()
	if err != nil {
		return nil, err
	}

	cfg := &config.RuntimeConfig{
		ProjectRoot:  projectRoot,
		DataDir:      filepath.Join(projectRoot, ".treb"),
		Debug:        v.GetBool("debug"),
		JSON:         v.GetBool("json"),
		Timeout:      v.GetDuration("timeout"),
		Ecosystem:    v.GetString("ecosystem"),
		Network:      v.GetString("network"),
		Hardhat:      hardhat,
		Test:         raw.testConfig(),
		RPCEndpoints: expandRPCEndpoints(raw.RPCEndpoints),
		ConfigSource: "defaults",
	}
	if found {
		cfg.ConfigSource = ConfigFileName
	}
	if dataDir := v.GetString("data_dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	applyOverrides(v, &cfg.Hardhat)

	log.Debug("loaded configuration",
		"project_root", cfg.ProjectRoot,
		"source", cfg.ConfigSource,
		"network", cfg.Network,
	)
	return cfg, nil
}

// applyOverrides lets HARDHAT_* variables and flags win over hardhat.toml
func applyOverrides(v *viper.Viper, h *config.HardhatConfig) {
	if v.IsSet("bin_path") {
		h.BinPath = v.GetString("bin_path")
	}
	if v.IsSet("manage_process") {
		h.ManageProcess = v.GetBool("manage_process")
	}
	if v.IsSet("process_attempts") {
		if n := v.GetInt("process_attempts"); n > 0 {
			h.ProcessAttempts = n
		}
	}
	if v.IsSet("config_file") {
		h.HardhatConfigFile = v.GetString("config_file")
	}
}

// FindProjectRoot walks up from current directory to find a hardhat project
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a Hardhat project (none of %s found)", strings.Join(projectMarkers, ", "))
		}
		dir = parent
	}
}

// SetupViper creates and configures a viper instance
func SetupViper(projectRoot string, cmd *cobra.Command) *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("HARDHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("ecosystem", "ethereum")
	v.SetDefault("network", "local")
	v.SetDefault("timeout", "5m")
	v.SetDefault("debug", false)
	v.SetDefault("project_root", projectRoot)

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	})

	return v
}
