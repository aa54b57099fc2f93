package usecase

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/pkg/units"
)

const (
	// DefaultProcessAttempts is how many launches are tried before giving up
	DefaultProcessAttempts = 5
	// DefaultStartTimeout bounds the wait for a spawned node to answer RPC
	DefaultStartTimeout = 20 * time.Second
	// DefaultForkStartTimeout leaves room for a fork to fetch upstream state
	DefaultForkStartTimeout = 120 * time.Second
	// DefaultRequestTimeout bounds a single RPC call on a local node
	DefaultRequestTimeout = 30 * time.Second
	// DefaultForkRequestTimeout bounds a single RPC call on a forked node
	DefaultForkRequestTimeout = 300 * time.Second

	probeTimeout = 2 * time.Second
)

// ProviderConfig configures a single provider
type ProviderConfig struct {
	Host            domain.HostSettings
	ManageProcess   bool
	ProcessAttempts int
	RequestTimeout  time.Duration
	StartTimeout    time.Duration
	// ConfigFile is a user supplied hardhat config; empty means the managed
	// file under DataDir
	ConfigFile string
	DataDir    string
	BinPath    string
	Node       domain.NodeConfig
	Fork       *domain.ForkConfig
}

// ManagedConfigFile returns the tool-managed config path under dataDir
func ManagedConfigFile(dataDir string) string {
	return filepath.Join(dataDir, "hardhat", "hardhat.config.js")
}

type session struct {
	endpoint      domain.ConnectionEndpoint
	process       NodeProcess
	client        NodeClient
	clientVersion string
	unlocked      mapset.Set[common.Address]
}

// Provider owns one connection to a Hardhat node: a spawned process or an
// attached one. All methods are safe for concurrent use.
type Provider struct {
	cfg        ProviderConfig
	resolver   EndpointResolver
	configFile ConfigFileWriter
	builder    CommandBuilder
	supervisor ProcessSupervisor
	dialer     NodeDialer
	translator ErrorTranslator
	metrics    SessionMetrics
	progress   ProgressSink
	log        *slog.Logger

	pollInterval time.Duration

	mu           sync.Mutex
	session      *session
	state        domain.SessionState
	installState domain.InstallState
}

// ProviderFactory builds providers that share the process-wide collaborators,
// most importantly the attempted-ports registry behind the resolver
type ProviderFactory struct {
	resolver   EndpointResolver
	configFile ConfigFileWriter
	builder    CommandBuilder
	supervisor ProcessSupervisor
	dialer     NodeDialer
	translator ErrorTranslator
	metrics    SessionMetrics
	progress   ProgressSink
	log        *slog.Logger
}

// NewProviderFactory creates a provider factory
func NewProviderFactory(
	resolver EndpointResolver,
	configFile ConfigFileWriter,
	builder CommandBuilder,
	supervisor ProcessSupervisor,
	dialer NodeDialer,
	translator ErrorTranslator,
	metrics SessionMetrics,
	progress ProgressSink,
	log *slog.Logger,
) *ProviderFactory {
	return &ProviderFactory{
		resolver:   resolver,
		configFile: configFile,
		builder:    builder,
		supervisor: supervisor,
		dialer:     dialer,
		translator: translator,
		metrics:    metrics,
		progress:   progress,
		log:        log,
	}
}

// New returns a disconnected provider
func (f *ProviderFactory) New(cfg ProviderConfig) *Provider {
	if cfg.ProcessAttempts <= 0 {
		cfg.ProcessAttempts = DefaultProcessAttempts
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
		if cfg.Fork != nil {
			cfg.StartTimeout = DefaultForkStartTimeout
		}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
		if cfg.Fork != nil {
			cfg.RequestTimeout = DefaultForkRequestTimeout
		}
	}

	name := "hardhat"
	if cfg.Fork != nil {
		name = "hardhat-fork"
	}

	return &Provider{
		cfg:          cfg,
		resolver:     f.resolver,
		configFile:   f.configFile,
		builder:      f.builder,
		supervisor:   f.supervisor,
		dialer:       f.dialer,
		translator:   f.translator,
		metrics:      f.metrics,
		progress:     f.progress,
		log:          f.log.With("component", "provider", "provider", name),
		pollInterval: 100 * time.Millisecond,
		state:        domain.StateNotStarted,
	}
}

// Config returns the effective settings after defaults were applied
func (p *Provider) Config() ProviderConfig {
	return p.cfg
}

// Status describes the current session
func (p *Provider) Status(ctx context.Context) domain.NodeStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := domain.NodeStatus{State: p.state, Fork: p.cfg.Fork}
	if p.session == nil {
		return status
	}

	s := p.session
	status.Endpoint = s.endpoint
	status.ClientVersion = s.clientVersion
	status.PoA = s.client.IsPoA()
	status.ChainID, _ = s.client.ChainID(ctx)
	if s.process != nil {
		status.Managed = true
		status.PID = s.process.PID()
		status.LogFile = s.process.LogFile()
	}
	return status
}

// Endpoint returns the connected endpoint or the zero value
func (p *Provider) Endpoint() domain.ConnectionEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return domain.ConnectionEndpoint{}
	}
	return p.session.endpoint
}

// IsFork reports whether the provider runs a forked network
func (p *Provider) IsFork() bool {
	return p.cfg.Fork != nil
}

// IsConnected re-checks the session on demand
func (p *Provider) IsConnected(ctx context.Context) bool {
	s, err := p.current()
	if err != nil {
		return false
	}
	return s.client.IsConnected(ctx)
}

// Process returns the owned process, nil when attached or disconnected
func (p *Provider) Process() NodeProcess {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	return p.session.process
}

func (p *Provider) current() (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, domain.ErrNotConnected
	}
	return p.session, nil
}

// ChainID returns eth_chainId
func (p *Provider) ChainID(ctx context.Context) (uint64, error) {
	s, err := p.current()
	if err != nil {
		return 0, err
	}
	return s.client.ChainID(ctx)
}

// ClientVersion returns web3_clientVersion
func (p *Provider) ClientVersion(ctx context.Context) (string, error) {
	s, err := p.current()
	if err != nil {
		return "", err
	}
	return s.client.ClientVersion(ctx)
}

// SetBlockGasLimit sets the gas limit of the next blocks
func (p *Provider) SetBlockGasLimit(ctx context.Context, limit uint64) (bool, error) {
	s, err := p.current()
	if err != nil {
		return false, err
	}
	return s.client.SetBlockGasLimit(ctx, limit)
}

// Mine mines n blocks
func (p *Provider) Mine(ctx context.Context, n uint64) error {
	s, err := p.current()
	if err != nil {
		return err
	}
	return s.client.Mine(ctx, n)
}

// Snapshot records the chain state
func (p *Provider) Snapshot(ctx context.Context) (domain.SnapshotID, error) {
	s, err := p.current()
	if err != nil {
		return "", err
	}
	return s.client.Snapshot(ctx)
}

// Revert restores a snapshot. Integer ids are accepted as well as hex strings.
func (p *Provider) Revert(ctx context.Context, id any) (bool, error) {
	s, err := p.current()
	if err != nil {
		return false, err
	}
	snapshot, err := snapshotID(id)
	if err != nil {
		return false, err
	}
	return s.client.Revert(ctx, snapshot)
}

func snapshotID(id any) (domain.SnapshotID, error) {
	switch v := id.(type) {
	case domain.SnapshotID:
		return snapshotID(string(v))
	case string:
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			return domain.SnapshotID(v), nil
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid snapshot id %q: %w", v, err)
		}
		return domain.SnapshotID(hexutil.EncodeUint64(n)), nil
	case int:
		if v < 0 {
			return "", fmt.Errorf("invalid snapshot id %d", v)
		}
		return domain.SnapshotID(hexutil.EncodeUint64(uint64(v))), nil
	case uint64:
		return domain.SnapshotID(hexutil.EncodeUint64(v)), nil
	default:
		return "", fmt.Errorf("unsupported snapshot id type %T", id)
	}
}

// SetTimestamp sets the timestamp of the next block
func (p *Provider) SetTimestamp(ctx context.Context, t time.Time) error {
	s, err := p.current()
	if err != nil {
		return err
	}
	return s.client.SetNextBlockTimestamp(ctx, t.Unix())
}

// SetBalance sets an account balance. amount is anything units.ToWei
// accepts, for example 10, "0x2a" or "1000 ETH".
func (p *Provider) SetBalance(ctx context.Context, addr common.Address, amount any) (bool, error) {
	s, err := p.current()
	if err != nil {
		return false, err
	}
	wei, err := units.ToWei(amount)
	if err != nil {
		return false, fmt.Errorf("invalid balance: %w", err)
	}
	return s.client.SetBalance(ctx, addr, wei)
}

// SetCode replaces the code at addr. code is raw bytes or a hex string.
func (p *Provider) SetCode(ctx context.Context, addr common.Address, code any) (bool, error) {
	s, err := p.current()
	if err != nil {
		return false, err
	}
	raw, err := codeBytes(code)
	if err != nil {
		return false, err
	}
	return s.client.SetCode(ctx, addr, raw)
}

func codeBytes(code any) ([]byte, error) {
	switch v := code.(type) {
	case []byte:
		return v, nil
	case hexutil.Bytes:
		return v, nil
	case string:
		if !strings.HasPrefix(v, "0x") && !strings.HasPrefix(v, "0X") {
			v = "0x" + v
		}
		if len(v)%2 == 1 {
			v = "0x0" + v[2:]
		}
		raw, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidHex, code)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidHex, code)
	}
}

// Impersonate unlocks addr for unsigned transactions in this session
func (p *Provider) Impersonate(ctx context.Context, addr common.Address) (bool, error) {
	s, err := p.current()
	if err != nil {
		return false, err
	}
	ok, err := s.client.ImpersonateAccount(ctx, addr)
	if err != nil {
		return false, err
	}
	if ok {
		s.unlocked.Add(addr)
	}
	return ok, nil
}

// UnlockedAccounts lists the impersonated accounts of the session
func (p *Provider) UnlockedAccounts() []common.Address {
	s, err := p.current()
	if err != nil {
		return nil
	}
	accounts := s.unlocked.ToSlice()
	slices.SortFunc(accounts, func(a, b common.Address) int { return a.Cmp(b) })
	return accounts
}

// ResetFork re-forks the upstream network at blockNumber, falling back to
// the configured fork block
func (p *Provider) ResetFork(ctx context.Context, blockNumber *uint64) (bool, error) {
	if p.cfg.Fork == nil {
		return false, domain.ErrNotForked
	}
	s, err := p.current()
	if err != nil {
		return false, err
	}
	if blockNumber == nil {
		blockNumber = p.cfg.Fork.BlockNumber
	}
	return s.client.ResetFork(ctx, p.cfg.Fork.UpstreamURL, blockNumber)
}

// Metadata returns hardhat_metadata
func (p *Provider) Metadata(ctx context.Context) (*domain.NodeMetadata, error) {
	s, err := p.current()
	if err != nil {
		return nil, err
	}
	return s.client.Metadata(ctx)
}

// GetBlock returns a block by tag or hex number
func (p *Provider) GetBlock(ctx context.Context, tag string) (*domain.Block, error) {
	s, err := p.current()
	if err != nil {
		return nil, err
	}
	return s.client.GetBlock(ctx, tag)
}

// Trace yields the frames of a transaction trace. The trace is fetched each
// time the sequence is ranged over.
func (p *Provider) Trace(ctx context.Context, hash common.Hash) iter.Seq2[domain.TraceFrame, error] {
	return func(yield func(domain.TraceFrame, error) bool) {
		s, err := p.current()
		if err != nil {
			yield(domain.TraceFrame{}, err)
			return
		}
		for frame, err := range s.client.TraceFrames(ctx, hash) {
			if !yield(frame, err) {
				return
			}
		}
	}
}

// TraceCall returns the raw debug_traceCall reply. Node failures come back
// classified.
func (p *Provider) TraceCall(ctx context.Context, req domain.CallRequest, block string) ([]byte, error) {
	s, err := p.current()
	if err != nil {
		return nil, err
	}
	raw, err := s.client.TraceCall(ctx, req, block)
	if err != nil {
		return nil, p.translator.Translate(err)
	}
	return raw, nil
}

// Call executes a message call without creating a transaction and returns
// its return data. Node failures come back classified.
func (p *Provider) Call(ctx context.Context, req domain.CallRequest, block string) ([]byte, error) {
	s, err := p.current()
	if err != nil {
		return nil, err
	}
	out, err := s.client.CallContract(ctx, req, block)
	if err != nil {
		return nil, p.translator.Translate(err)
	}
	return out, nil
}

// EstimateGas estimates the gas a transaction needs. Node failures come back
// classified, so a reverting transaction reports its revert reason.
func (p *Provider) EstimateGas(ctx context.Context, req domain.CallRequest, block string) (uint64, error) {
	s, err := p.current()
	if err != nil {
		return 0, err
	}
	gas, err := s.client.EstimateGas(ctx, req, block)
	if err != nil {
		return 0, p.translator.Translate(err)
	}
	return gas, nil
}

// SendUnsignedTransaction sends a transaction from an impersonated account.
// Node failures come back classified.
func (p *Provider) SendUnsignedTransaction(ctx context.Context, req domain.CallRequest) (common.Hash, error) {
	s, err := p.current()
	if err != nil {
		return common.Hash{}, err
	}
	if !s.unlocked.Contains(req.From) {
		return common.Hash{}, &domain.ProviderError{Message: fmt.Sprintf("account %s is not impersonated", req.From.Hex())}
	}

	hash, err := s.client.SendTransaction(ctx, req)
	if err != nil {
		return common.Hash{}, p.translator.Translate(err)
	}
	return hash, nil
}
