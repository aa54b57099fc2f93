package usecase_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// connectedProvider returns a provider attached to a fake node on 8545
func connectedProvider(t *testing.T, cfg usecase.ProviderConfig) (*usecase.Provider, *fakeClient) {
	t.Helper()
	h := newHarness()
	ep := domain.NewLocalEndpoint(8545)
	h.resolver.On("Resolve", mock.Anything).Return(ep, nil)
	h.dialer.setHealthy(ep, true)

	p := h.factory.New(cfg)
	require.NoError(t, p.Connect(context.Background()))
	return p, h.dialer.client(ep)
}

func TestProvider_RequiresSession(t *testing.T) {
	ctx := context.Background()
	p := newHarness().factory.New(localConfig())

	_, err := p.ChainID(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	_, err = p.Snapshot(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	_, err = p.SetBalance(ctx, common.Address{}, 1)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Nil(t, p.UnlockedAccounts())
	assert.False(t, p.IsConnected(ctx))

	for _, err := range p.Trace(ctx, common.Hash{}) {
		assert.ErrorIs(t, err, domain.ErrNotConnected)
	}
}

func TestProvider_Verbs(t *testing.T) {
	ctx := context.Background()
	p, client := connectedProvider(t, localConfig())

	ok, err := p.SetBlockGasLimit(ctx, 30_000_000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []any{uint64(30_000_000)}, client.argsOf("SetBlockGasLimit"))

	require.NoError(t, p.Mine(ctx, 5))
	assert.Equal(t, []any{uint64(5)}, client.argsOf("Mine"))

	id, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotID("0x1"), id)

	ts := time.Unix(1_700_000_000, 0)
	require.NoError(t, p.SetTimestamp(ctx, ts))
	assert.Equal(t, []any{int64(1_700_000_000)}, client.argsOf("SetNextBlockTimestamp"))

	meta, err := p.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(domain.HardhatChainID), meta.ChainID)

	version, err := p.ClientVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, hardhatVersion, version)
}

func TestProvider_Revert(t *testing.T) {
	ctx := context.Background()
	p, client := connectedProvider(t, localConfig())

	tests := []struct {
		name string
		id   any
		want domain.SnapshotID
	}{
		{"int", 5, "0x5"},
		{"uint64", uint64(26), "0x1a"},
		{"hex string", "0x3", "0x3"},
		{"decimal string", "17", "0x11"},
		{"snapshot id", domain.SnapshotID("0x7"), "0x7"},
		{"decimal snapshot id", domain.SnapshotID("3"), "0x3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := p.Revert(ctx, tt.id)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []any{tt.want}, client.argsOf("Revert"))
		})
	}

	_, err := p.Revert(ctx, -1)
	assert.Error(t, err)
	_, err = p.Revert(ctx, 1.5)
	assert.Error(t, err)
	_, err = p.Revert(ctx, "snap")
	assert.Error(t, err)
}

func TestProvider_SetBalance(t *testing.T) {
	ctx := context.Background()
	p, client := connectedProvider(t, localConfig())
	addr := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	ether, _ := new(big.Int).SetString("1000000000000000000000", 10)
	tests := []struct {
		name   string
		amount any
		want   *big.Int
	}{
		{"int", 42, big.NewInt(42)},
		{"hex", "0x2a", big.NewInt(42)},
		{"denominated", "1000 ETH", ether},
		{"big", big.NewInt(7), big.NewInt(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := p.SetBalance(ctx, addr, tt.amount)
			require.NoError(t, err)
			assert.True(t, ok)
			args := client.argsOf("SetBalance")
			assert.Equal(t, addr, args[0])
			assert.Equal(t, 0, tt.want.Cmp(args[1].(*big.Int)))
		})
	}

	_, err := p.SetBalance(ctx, addr, "lots of ETH")
	assert.Error(t, err)
}

func TestProvider_SetCode(t *testing.T) {
	ctx := context.Background()
	p, client := connectedProvider(t, localConfig())
	addr := common.HexToAddress("0x01")

	_, err := p.SetCode(ctx, addr, []byte{0x60, 0x80})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, client.argsOf("SetCode")[1])

	_, err = p.SetCode(ctx, addr, "0x6080")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, client.argsOf("SetCode")[1])

	_, err = p.SetCode(ctx, addr, "6080")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, client.argsOf("SetCode")[1])

	_, err = p.SetCode(ctx, addr, "0xzz")
	assert.ErrorIs(t, err, domain.ErrInvalidHex)

	_, err = p.SetCode(ctx, addr, 12)
	assert.ErrorIs(t, err, domain.ErrInvalidHex)
}

func TestProvider_ImpersonateAndSend(t *testing.T) {
	ctx := context.Background()
	p, client := connectedProvider(t, localConfig())
	whale := common.HexToAddress("0xF977814e90dA44bFA03b6295A0616a897441aceC")
	other := common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")
	to := common.HexToAddress("0x02")

	_, err := p.SendUnsignedTransaction(ctx, domain.CallRequest{From: whale, To: &to})
	var providerErr *domain.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 0, client.count("SendTransaction"))

	for _, addr := range []common.Address{whale, other} {
		ok, err := p.Impersonate(ctx, addr)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, []common.Address{other, whale}, p.UnlockedAccounts())

	hash, err := p.SendUnsignedTransaction(ctx, domain.CallRequest{From: whale, To: &to})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xabc"), hash)

	client.sendErr = errors.New("VM Exception while processing transaction: revert")
	_, err = p.SendUnsignedTransaction(ctx, domain.CallRequest{From: whale, To: &to})
	var vmErr *domain.VMError
	require.ErrorAs(t, err, &vmErr)
	assert.ErrorIs(t, err, client.sendErr)
}

func TestProvider_UnlockedAccountsClearedOnDisconnect(t *testing.T) {
	ctx := context.Background()
	p, _ := connectedProvider(t, localConfig())

	_, err := p.Impersonate(ctx, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Len(t, p.UnlockedAccounts(), 1)

	require.NoError(t, p.Disconnect(ctx))
	require.NoError(t, p.Connect(ctx))
	assert.Empty(t, p.UnlockedAccounts())
}

func TestProvider_ResetFork(t *testing.T) {
	ctx := context.Background()

	t.Run("local session", func(t *testing.T) {
		p, _ := connectedProvider(t, localConfig())
		_, err := p.ResetFork(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrNotForked)
	})

	t.Run("fork session", func(t *testing.T) {
		block := uint64(19_000_000)
		cfg := localConfig()
		cfg.Fork = &domain.ForkConfig{
			Ecosystem:   "ethereum",
			Network:     "mainnet-fork",
			UpstreamURL: "https://eth.example.org",
			BlockNumber: &block,
		}
		p, client := connectedProvider(t, cfg)

		ok, err := p.ResetFork(ctx, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		args := client.argsOf("ResetFork")
		assert.Equal(t, "https://eth.example.org", args[0])
		assert.Equal(t, block, *args[1].(*uint64))

		other := uint64(18_000_000)
		_, err = p.ResetFork(ctx, &other)
		require.NoError(t, err)
		assert.Equal(t, other, *client.argsOf("ResetFork")[1].(*uint64))
	})
}

func TestProvider_TraceIsLazy(t *testing.T) {
	ctx := context.Background()
	p, client := connectedProvider(t, localConfig())
	client.trace = []domain.TraceFrame{
		{PC: 0, Op: "PUSH1", Depth: 1},
		{PC: 2, Op: "MSTORE", Depth: 1},
		{PC: 3, Op: "STOP", Depth: 1},
	}
	hash := common.HexToHash("0x0f")

	frames := p.Trace(ctx, hash)
	assert.Equal(t, 0, client.count("TraceFrames"))

	var ops []string
	for frame, err := range frames {
		require.NoError(t, err)
		ops = append(ops, frame.Op)
		if frame.Op == "MSTORE" {
			break
		}
	}
	assert.Equal(t, []string{"PUSH1", "MSTORE"}, ops)

	n := 0
	for range frames {
		n++
	}
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, client.count("TraceFrames"))
}

func TestProvider_TraceCallAndBlock(t *testing.T) {
	ctx := context.Background()
	p, client := connectedProvider(t, localConfig())

	raw, err := p.TraceCall(ctx, domain.CallRequest{From: common.HexToAddress("0x01")}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"structLogs": []}`, string(raw))
	assert.Equal(t, 1, client.count("TraceCall"))

	block, err := p.GetBlock(ctx, "latest")
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x01"), block.Hash)

	client.callErr = errors.New("VM Exception while processing transaction: revert")
	_, err = p.TraceCall(ctx, domain.CallRequest{From: common.HexToAddress("0x01")}, "")
	var vmErr *domain.VMError
	require.ErrorAs(t, err, &vmErr)
	assert.ErrorIs(t, err, client.callErr)
}

func TestProvider_CallAndEstimateGas(t *testing.T) {
	ctx := context.Background()
	p, client := connectedProvider(t, localConfig())
	token := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	req := domain.CallRequest{To: &token, Data: common.FromHex("0x18160ddd")}

	out, err := p.Call(ctx, req, "latest")
	require.NoError(t, err)
	require.Len(t, out, 32)
	assert.Equal(t, byte(42), out[31])
	assert.Equal(t, []any{req, "latest"}, client.argsOf("CallContract"))

	gas, err := p.EstimateGas(ctx, req, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)

	client.callErr = errors.New("VM Exception while processing transaction: reverted with reason string 'paused'")

	_, err = p.Call(ctx, req, "latest")
	var vmErr *domain.VMError
	require.ErrorAs(t, err, &vmErr)
	assert.ErrorIs(t, err, client.callErr)

	_, err = p.EstimateGas(ctx, req, "")
	require.ErrorAs(t, err, &vmErr)
	assert.ErrorIs(t, err, client.callErr)

	require.NoError(t, p.Disconnect(ctx))
	_, err = p.Call(ctx, req, "latest")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}
