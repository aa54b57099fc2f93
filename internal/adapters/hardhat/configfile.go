package hardhat

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/gofrs/flock"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

const (
	// DefaultConfigFileName is the file written when only a directory is given
	DefaultConfigFileName = "hardhat.config.js"
	// HDPath is the account derivation path Hardhat is configured with
	HDPath = "m/44'/60'/0'"
	// DefaultHardfork is used when no EVM version is configured
	DefaultHardfork = "shanghai"
)

// ConfigFileNames are the file names Hardhat looks for
var ConfigFileNames = []string{DefaultConfigFileName, "hardhat.config.ts"}

const configTemplate = `// See https://hardhat.org/config/ for config options.
module.exports = {
  networks: {
    hardhat: {
      hardfork: "{{.Hardfork}}",
      // Base fee of 0 allows use of 0 gas price when testing
      initialBaseFeePerGas: 0,
      accounts: {
        mnemonic: "{{.Mnemonic}}",
        path: "{{.HDPath}}",
        count: {{.NumberOfAccounts}},
        accountsBalance: "{{.AccountsBalance}}"
      }
    },
  },
};
`

var tmpl = template.Must(template.New("hardhat.config.js").Parse(configTemplate))

// ConfigFile writes and validates hardhat.config.js files
type ConfigFile struct {
	log *slog.Logger
}

// NewConfigFile creates a config file writer
func NewConfigFile(log *slog.Logger) *ConfigFile {
	return &ConfigFile{log: log.With("component", "configfile")}
}

// ResolvePath appends the default file name to directories and rejects
// unknown file names
func (c *ConfigFile) ResolvePath(path string) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, DefaultConfigFileName), nil
	}
	if !slices.Contains(ConfigFileNames, filepath.Base(path)) {
		return "", &domain.ConfigError{
			Key:     "hardhat_config_file",
			Message: fmt.Sprintf("expecting file name to be one of '%s', received '%s'", strings.Join(ConfigFileNames, ", "), filepath.Base(path)),
		}
	}
	return path, nil
}

// Render returns the config file contents for cfg
func (c *ConfigFile) Render(cfg domain.NodeConfig) (string, error) {
	if cfg.HDPath == "" {
		cfg.HDPath = HDPath
	}
	if cfg.Hardfork == "" {
		cfg.Hardfork = DefaultHardfork
	}
	if cfg.AccountsBalance == "" {
		cfg.AccountsBalance = "0"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", fmt.Errorf("failed to render hardhat config: %w", err)
	}
	return buf.String(), nil
}

// Ensure makes sure a config file exists at path. A missing file is
// created; an existing file is never modified and only checked, with a
// warning when its accounts section differs from cfg.
func (c *ConfigFile) Ensure(path string, cfg domain.NodeConfig) (string, error) {
	path, err := c.ResolvePath(path)
	if err != nil {
		return "", err
	}

	content, err := c.Render(cfg)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c.log.Debug("creating hardhat config", "path", path)
		return path, c.write(path, content)
	}

	c.validate(path, cfg, content)
	return path, nil
}

// Write regenerates the tool-managed config file when its content differs
func (c *ConfigFile) Write(path string, cfg domain.NodeConfig) (string, error) {
	path, err := c.ResolvePath(path)
	if err != nil {
		return "", err
	}

	content, err := c.Render(cfg)
	if err != nil {
		return "", err
	}

	if existing, err := os.ReadFile(path); err == nil && string(existing) == content {
		return path, nil
	}
	return path, c.write(path, content)
}

func (c *ConfigFile) write(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write hardhat config: %w", err)
	}
	return nil
}

func (c *ConfigFile) validate(path string, cfg domain.NodeConfig, expected string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		c.log.Error("Failed to read Hardhat config file. Some features may not work as intended.", "path", path, "error", err)
		return
	}
	content := string(raw)

	matches := false
	if obj, err := ParseJSObject(content); err == nil {
		matches = accountsMatch(obj, cfg)
	} else {
		c.log.Debug("hardhat config is not a plain object literal, falling back to text search", "path", path, "error", err)
		matches = strings.Contains(content, cfg.Mnemonic) &&
			strings.Contains(content, HDPath) &&
			strings.Contains(content, strconv.Itoa(cfg.NumberOfAccounts))
	}

	if !matches {
		c.log.Warn(fmt.Sprintf("Existing '%s' conflicts with treb-hardhat. Some features may not work as intended. "+
			"The default config looks like this:\n%s\n"+
			"NOTE: You can configure the test account mnemonic and/or number of test accounts in the [test] section of hardhat.toml",
			filepath.Base(path), expected), "path", path)
	}
}

func accountsMatch(obj map[string]any, cfg domain.NodeConfig) bool {
	accounts := nested(obj, "networks", "hardhat", "accounts")
	if len(accounts) == 0 {
		return false
	}
	return fmt.Sprint(accounts["mnemonic"]) == cfg.Mnemonic &&
		fmt.Sprint(accounts["count"]) == strconv.Itoa(cfg.NumberOfAccounts) &&
		fmt.Sprint(accounts["path"]) == HDPath
}

func nested(obj map[string]any, keys ...string) map[string]any {
	current := obj
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

var _ usecase.ConfigFileWriter = (*ConfigFile)(nil)
