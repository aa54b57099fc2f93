package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

func localConfig() usecase.ProviderConfig {
	return usecase.ProviderConfig{
		ManageProcess:   true,
		ProcessAttempts: 3,
		StartTimeout:    2 * time.Second,
		DataDir:         "/data",
	}
}

func TestConnect_AttachesToRunningNode(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ep := domain.NewLocalEndpoint(8545)
	h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
	h.dialer.setHealthy(ep, true)

	p := h.factory.New(localConfig())
	require.NoError(t, p.Connect(ctx))

	status := p.Status(ctx)
	assert.Equal(t, domain.StateHealthy, status.State)
	assert.False(t, status.Managed)
	assert.Equal(t, hardhatVersion, status.ClientVersion)
	assert.Equal(t, uint64(domain.HardhatChainID), status.ChainID)
	assert.Equal(t, 0, h.supervisor.spawnCount())
	h.builder.AssertNotCalled(t, "Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.configFile.AssertCalled(t, "Write", usecase.ManagedConfigFile("/data"), mock.Anything)
}

func TestConnect_SpawnsLocalNode(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ep := domain.NewLocalEndpoint(8545)
	h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
	h.builder.On("Build", mock.Anything, 8545, "/data/hardhat/hardhat.config.js", "", (*domain.ForkConfig)(nil)).
		Return(commandFor(8545), domain.InstallVerified, nil)
	h.healthyOnSpawn()

	p := h.factory.New(localConfig())
	require.NoError(t, p.Connect(ctx))

	status := p.Status(ctx)
	assert.Equal(t, domain.StateHealthy, status.State)
	assert.True(t, status.Managed)
	assert.Equal(t, 1001, status.PID)
	assert.Equal(t, "node-8545.log", status.LogFile)
	assert.Equal(t, 1, h.supervisor.spawnCount())
	h.builder.AssertExpectations(t)
}

func TestConnect_UserConfigFileIsOnlyEnsured(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ep := domain.NewLocalEndpoint(8545)
	h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
	h.dialer.setHealthy(ep, true)
	h.configFile.On("Ensure", "/project/hardhat.config.ts", mock.Anything).Return("/project/hardhat.config.ts", nil)

	cfg := localConfig()
	cfg.ConfigFile = "/project/hardhat.config.ts"
	p := h.factory.New(cfg)
	require.NoError(t, p.Connect(ctx))

	h.configFile.AssertCalled(t, "Ensure", "/project/hardhat.config.ts", mock.Anything)
	h.configFile.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
}

func TestConnect_RemoteUnreachable(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ep, err := domain.ParseEndpoint("https://node.example.com:8545")
	require.NoError(t, err)
	h.resolver.On("Resolve", mock.Anything).Return(ep, nil)

	p := h.factory.New(localConfig())
	err = p.Connect(ctx)

	var providerErr *domain.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "Failed to connect to remote Hardhat node at 'https://node.example.com:8545'", err.Error())
	assert.Equal(t, 0, h.supervisor.spawnCount())
	assert.Equal(t, domain.StateStopped, p.Status(ctx).State)
}

func TestConnect_ManageProcessDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(domain.NewLocalEndpoint(8545), nil)

	cfg := localConfig()
	cfg.ManageProcess = false
	err := h.factory.New(cfg).Connect(ctx)

	var providerErr *domain.ProviderError
	assert.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 0, h.supervisor.spawnCount())
}

func TestConnect_PortConflictOnExplicitPortIsFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ep := domain.NewLocalEndpoint(8545)
	h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
	h.dialer.setHealthy(ep, true)
	h.dialer.client(ep).identityErr = &domain.PortConflictError{Endpoint: ep.CleanURI(), ClientVersion: "anvil/v0.2.0"}

	p := h.factory.New(localConfig())
	err := p.Connect(ctx)

	var conflict *domain.PortConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 0, h.supervisor.spawnCount())
	assert.True(t, h.dialer.client(ep).closed.Load())
}

func TestConnect_AutoPortRetriesOnFreshPort(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(autoEndpoint(50001), nil)
	h.resolver.On("AllocateAuto").Return(autoEndpoint(50002), nil).Once()
	h.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(func(_ context.Context, port int, _, _ string, _ *domain.ForkConfig) domain.NodeCommand {
			return commandFor(port)
		}, domain.InstallVerified, nil)

	// the first port is taken: the node exits straight away
	h.supervisor.onSpawn = func(p *fakeProcess) {
		if p.port == 50001 {
			p.exit(errors.New("exit status 1"))
			return
		}
		h.dialer.setHealthy(domain.NewLocalEndpoint(p.port), true)
	}

	p := h.factory.New(localConfig())
	require.NoError(t, p.Connect(ctx))

	assert.Equal(t, 50002, p.Endpoint().Port)
	assert.True(t, p.Endpoint().Auto)
	assert.Equal(t, 2, h.supervisor.spawnCount())
	h.resolver.AssertExpectations(t)
	assert.Contains(t, h.logs.String(), "retrying hardhat subprocess startup")
}

func TestConnect_AutoPortConflictRetries(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(autoEndpoint(50001), nil)
	h.resolver.On("AllocateAuto").Return(autoEndpoint(50002), nil).Once()
	h.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(func(_ context.Context, port int, _, _ string, _ *domain.ForkConfig) domain.NodeCommand {
			return commandFor(port)
		}, domain.InstallVerified, nil)
	h.healthyOnSpawn()
	h.dialer.client(domain.NewLocalEndpoint(50001)).identityErr = &domain.PortConflictError{Endpoint: "http://127.0.0.1:50001"}

	p := h.factory.New(localConfig())
	require.NoError(t, p.Connect(ctx))

	assert.Equal(t, 50002, p.Endpoint().Port)
	assert.Equal(t, 1, h.supervisor.stopCount())
}

func TestConnect_FatalInstallErrorShortCircuits(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(autoEndpoint(50001), nil)
	h.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.NodeCommand{}, domain.InstallUnknown, &domain.DependencyMissingError{Tool: "npx", Reason: "executable not found"})

	err := h.factory.New(localConfig()).Connect(ctx)

	var missing *domain.DependencyMissingError
	require.ErrorAs(t, err, &missing)
	h.builder.AssertNumberOfCalls(t, "Build", 1)
	h.resolver.AssertNotCalled(t, "AllocateAuto")
}

func TestConnect_MissingProjectBinaryIsNotRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(autoEndpoint(50002), nil)
	h.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.NodeCommand{}, domain.InstallVerified, &domain.NotInstalledError{Err: errors.New("hardhat binary not found at node_modules/.bin/hardhat")})

	err := h.factory.New(localConfig()).Connect(ctx)

	var notInstalled *domain.NotInstalledError
	require.ErrorAs(t, err, &notInstalled)
	h.builder.AssertNumberOfCalls(t, "Build", 1)
	h.resolver.AssertNotCalled(t, "AllocateAuto")
	assert.Equal(t, 0, h.supervisor.spawnCount())
}

func TestConnect_TimeoutWithUncertainInstall(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(domain.NewLocalEndpoint(8545), nil)
	h.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandFor(8545), domain.InstallUncertain, nil)

	cfg := localConfig()
	cfg.StartTimeout = 300 * time.Millisecond
	err := h.factory.New(cfg).Connect(ctx)

	var notInstalled *domain.NotInstalledError
	require.ErrorAs(t, err, &notInstalled)
	var timeout *domain.SubprocessTimeoutError
	assert.ErrorAs(t, err, &timeout)
	h.builder.AssertNumberOfCalls(t, "Build", 1)
	assert.Equal(t, 1, h.supervisor.stopCount())
}

func TestConnect_TimeoutRetriesWhenInstallVerified(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(domain.NewLocalEndpoint(8545), nil)
	h.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandFor(8545), domain.InstallVerified, nil)

	cfg := localConfig()
	cfg.StartTimeout = 150 * time.Millisecond
	cfg.ProcessAttempts = 2
	err := h.factory.New(cfg).Connect(ctx)

	var timeout *domain.SubprocessTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, h.supervisor.spawnCount())
	assert.Equal(t, 2, h.supervisor.stopCount())
}

func TestConnect_ForkUpstreamSameAsLocal(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(domain.NewLocalEndpoint(8545), nil)

	cfg := localConfig()
	cfg.Fork = &domain.ForkConfig{Ecosystem: "ethereum", Network: "mainnet-fork", UpstreamURL: "http://localhost:8545"}
	err := h.factory.New(cfg).Connect(ctx)

	var providerErr *domain.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Contains(t, err.Error(), "can't be same as local Hardhat node")
	assert.Equal(t, 0, h.supervisor.spawnCount())
}

func TestConnect_ForkGenesisMismatchWarns(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ep := domain.NewLocalEndpoint(8545)
	h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
	h.dialer.setHealthy(ep, true)

	upstream, err := domain.ParseEndpoint("https://eth.example.org")
	require.NoError(t, err)
	h.dialer.client(upstream).genesis = common.HexToHash("0xd4e5")

	cfg := localConfig()
	cfg.Fork = &domain.ForkConfig{Ecosystem: "ethereum", Network: "mainnet-fork", UpstreamURL: "https://eth.example.org"}
	p := h.factory.New(cfg)
	require.NoError(t, p.Connect(ctx))

	assert.Contains(t, h.logs.String(), "mismatching genesis block")
	assert.True(t, h.dialer.client(upstream).closed.Load())
	assert.True(t, p.IsFork())
}

func TestConnect_ForkUpstreamWithPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ep := domain.NewLocalEndpoint(8545)
	h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
	h.dialer.setHealthy(ep, true)

	const upstreamURL = "https://mainnet.infura.io/v3/key"
	upstream, err := domain.ParseEndpoint(upstreamURL)
	require.NoError(t, err)

	cfg := localConfig()
	cfg.Fork = &domain.ForkConfig{Ecosystem: "ethereum", Network: "mainnet-fork", UpstreamURL: upstreamURL}
	require.NoError(t, h.factory.New(cfg).Connect(ctx))

	assert.Contains(t, h.dialer.dialedURIs(), upstreamURL)
	assert.Equal(t, 1, h.dialer.client(upstream).count("GetBlock"))
}

func TestConnect_ReconnectPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy session is a no-op", func(t *testing.T) {
		h := newHarness()
		ep := domain.NewLocalEndpoint(8545)
		h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
		h.dialer.setHealthy(ep, true)

		p := h.factory.New(localConfig())
		require.NoError(t, p.Connect(ctx))
		require.NoError(t, p.Connect(ctx))

		assert.Equal(t, 1, h.dialer.dialCount())
		h.resolver.AssertNumberOfCalls(t, "Resolve", 1)
	})

	t.Run("dead owned process", func(t *testing.T) {
		h := newHarness()
		h.resolver.On("Resolve", mock.Anything).Return(domain.NewLocalEndpoint(8545), nil)
		h.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(commandFor(8545), domain.InstallVerified, nil)
		h.healthyOnSpawn()

		p := h.factory.New(localConfig())
		require.NoError(t, p.Connect(ctx))

		h.supervisor.spawned[0].exit(errors.New("signal: killed"))

		assert.ErrorIs(t, p.Connect(ctx), domain.ErrProcessDied)
		assert.True(t, p.Endpoint().IsZero())
		assert.Equal(t, domain.StateStopped, p.Status(ctx).State)
	})

	t.Run("unreachable attached node reconnects", func(t *testing.T) {
		h := newHarness()
		ep := domain.NewLocalEndpoint(8545)
		h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
		h.dialer.setHealthy(ep, true)

		p := h.factory.New(localConfig())
		require.NoError(t, p.Connect(ctx))

		h.dialer.client(ep).connected.Store(false)
		require.NoError(t, p.Connect(ctx))

		assert.Equal(t, 2, h.dialer.dialCount())
		assert.True(t, p.IsConnected(ctx))
	})
}

func TestDisconnect_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.resolver.On("Resolve", mock.Anything).Return(domain.NewLocalEndpoint(8545), nil)
	h.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandFor(8545), domain.InstallVerified, nil)
	h.healthyOnSpawn()

	p := h.factory.New(localConfig())
	require.NoError(t, p.Disconnect(ctx))
	require.NoError(t, p.Connect(ctx))

	require.NoError(t, p.Disconnect(ctx))
	require.NoError(t, p.Disconnect(ctx))

	assert.Equal(t, 1, h.supervisor.stopCount())
	assert.Nil(t, p.Process())
	assert.True(t, p.Endpoint().IsZero())
	assert.Equal(t, domain.StateStopped, p.Status(ctx).State)
	assert.ErrorIs(t, p.Mine(ctx, 1), domain.ErrNotConnected)
}
