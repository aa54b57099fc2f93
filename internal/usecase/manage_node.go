package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/domain/config"
	"github.com/trebuchet-org/treb-hardhat/pkg/units"
)

// ForkResolver maps a "<network>-fork" name to its fork settings
type ForkResolver interface {
	ResolveFork(ecosystem, network string) (*domain.ForkConfig, error)
}

// ManageNode handles hardhat node management operations
type ManageNode struct {
	cfg        *config.RuntimeConfig
	factory    *ProviderFactory
	forks      ForkResolver
	configFile ConfigFileWriter
	progress   ProgressSink
}

// NewManageNode creates a new node management use case
func NewManageNode(cfg *config.RuntimeConfig, factory *ProviderFactory, forks ForkResolver, configFile ConfigFileWriter, progress ProgressSink) *ManageNode {
	return &ManageNode{
		cfg:        cfg,
		factory:    factory,
		forks:      forks,
		configFile: configFile,
		progress:   progress,
	}
}

// ManageNodeParams contains parameters for node operations
type ManageNodeParams struct {
	Operation string // start, status, config
	// Host overrides the configured host for this call
	Host string
}

// ManageNodeResult contains the result of node operations
type ManageNodeResult struct {
	Operation string
	// Provider is the connected provider after start; the caller disconnects it
	Provider   *Provider
	Status     domain.NodeStatus
	ConfigFile string
	Success    bool
	Message    string
}

// Execute performs the node management operation
func (m *ManageNode) Execute(ctx context.Context, params ManageNodeParams) (*ManageNodeResult, error) {
	switch params.Operation {
	case "start":
		return m.start(ctx, params)
	case "status":
		return m.status(ctx, params)
	case "config":
		return m.config()
	default:
		return nil, fmt.Errorf("unknown operation: %s", params.Operation)
	}
}

// ProviderConfig builds the provider settings for the configured network
func (m *ManageNode) ProviderConfig(params ManageNodeParams) (ProviderConfig, error) {
	node, err := m.nodeConfig()
	if err != nil {
		return ProviderConfig{}, err
	}

	hh := m.cfg.Hardhat
	pc := ProviderConfig{
		Host: domain.HostSettings{
			OverrideHost: params.Host,
			Host:         hh.Host,
			Port:         hh.Port,
		},
		ManageProcess:   hh.ManageProcess,
		ProcessAttempts: hh.ProcessAttempts,
		RequestTimeout:  hh.RequestTimeout,
		StartTimeout:    hh.StartTimeout,
		ConfigFile:      m.userConfigFile(),
		DataDir:         m.cfg.DataDir,
		BinPath:         hh.BinPath,
		Node:            node,
	}

	if domain.IsForkNetwork(m.cfg.Network) {
		fork, err := m.forks.ResolveFork(m.cfg.Ecosystem, m.cfg.Network)
		if err != nil {
			return ProviderConfig{}, err
		}
		pc.Fork = fork
		pc.RequestTimeout = hh.ForkRequestTimeout
		pc.StartTimeout = hh.ForkStartTimeout
		if settings, ok := hh.ForkSettingsFor(m.cfg.Ecosystem, fork.UpstreamNetwork()); ok && settings.Host != "" {
			pc.Host.Host = settings.Host
		}
	}

	return pc, nil
}

func (m *ManageNode) nodeConfig() (domain.NodeConfig, error) {
	test := m.cfg.Test
	node := domain.NodeConfig{
		Mnemonic:         test.Mnemonic,
		HDPath:           test.HDPath,
		NumberOfAccounts: test.NumberOfAccounts,
		Hardfork:         m.cfg.Hardhat.EVMVersion,
	}
	if test.Balance != "" {
		wei, err := units.ToWei(test.Balance)
		if err != nil {
			return domain.NodeConfig{}, &domain.ConfigError{Key: "test.balance", Message: err.Error()}
		}
		node.AccountsBalance = wei.String()
	}
	return node, nil
}

func (m *ManageNode) userConfigFile() string {
	path := m.cfg.Hardhat.HardhatConfigFile
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.cfg.ProjectRoot, path)
}

func (m *ManageNode) start(ctx context.Context, params ManageNodeParams) (*ManageNodeResult, error) {
	pc, err := m.ProviderConfig(params)
	if err != nil {
		return nil, err
	}

	m.progress.Info("🔨 Starting Hardhat node...")

	provider := m.factory.New(pc)
	if err := provider.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to start hardhat node: %w", err)
	}

	status := provider.Status(ctx)
	message := fmt.Sprintf("Connected to existing Hardhat node at %s", status.Endpoint.CleanURI())
	if status.Managed {
		message = fmt.Sprintf("Hardhat node started with PID %d", status.PID)
	}

	return &ManageNodeResult{
		Operation: "start",
		Provider:  provider,
		Status:    status,
		Success:   true,
		Message:   message,
	}, nil
}

func (m *ManageNode) status(ctx context.Context, params ManageNodeParams) (*ManageNodeResult, error) {
	pc, err := m.ProviderConfig(params)
	if err != nil {
		return nil, err
	}
	// never spawn just to report status
	pc.ManageProcess = false

	provider := m.factory.New(pc)
	if err := provider.Connect(ctx); err != nil {
		return &ManageNodeResult{
			Operation: "status",
			Status:    domain.NodeStatus{State: domain.StateStopped, Fork: pc.Fork},
			Success:   false,
			Message:   err.Error(),
		}, nil
	}
	defer func() { _ = provider.Disconnect(ctx) }()

	return &ManageNodeResult{
		Operation: "status",
		Status:    provider.Status(ctx),
		Success:   true,
	}, nil
}

func (m *ManageNode) config() (*ManageNodeResult, error) {
	node, err := m.nodeConfig()
	if err != nil {
		return nil, err
	}

	var path string
	if user := m.userConfigFile(); user != "" {
		path, err = m.configFile.Ensure(user, node)
	} else {
		path, err = m.configFile.Write(ManagedConfigFile(m.cfg.DataDir), node)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write hardhat config: %w", err)
	}

	return &ManageNodeResult{
		Operation:  "config",
		ConfigFile: path,
		Success:    true,
		Message:    fmt.Sprintf("Hardhat config at %s", path),
	}, nil
}
