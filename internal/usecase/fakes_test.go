package usecase_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

const hardhatVersion = "HardhatNetwork/2.22.2/@nomicfoundation/edr/0.3.5"

// MockResolver is a mock implementation of EndpointResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(settings domain.HostSettings) (domain.ConnectionEndpoint, error) {
	args := m.Called(settings)
	return args.Get(0).(domain.ConnectionEndpoint), args.Error(1)
}

func (m *MockResolver) IsAuto(settings domain.HostSettings) bool {
	args := m.Called(settings)
	return args.Bool(0)
}

func (m *MockResolver) AllocateAuto() (domain.ConnectionEndpoint, error) {
	args := m.Called()
	return args.Get(0).(domain.ConnectionEndpoint), args.Error(1)
}

// MockConfigFile is a mock implementation of ConfigFileWriter
type MockConfigFile struct {
	mock.Mock
}

func (m *MockConfigFile) Ensure(path string, cfg domain.NodeConfig) (string, error) {
	args := m.Called(path, cfg)
	return args.String(0), args.Error(1)
}

func (m *MockConfigFile) Write(path string, cfg domain.NodeConfig) (string, error) {
	args := m.Called(path, cfg)
	return args.String(0), args.Error(1)
}

// MockCommandBuilder is a mock implementation of CommandBuilder
type MockCommandBuilder struct {
	mock.Mock
}

func (m *MockCommandBuilder) Build(ctx context.Context, port int, configFile, binOverride string, fork *domain.ForkConfig) (domain.NodeCommand, domain.InstallState, error) {
	args := m.Called(ctx, port, configFile, binOverride, fork)
	cmd, ok := args.Get(0).(domain.NodeCommand)
	if !ok {
		build := args.Get(0).(func(context.Context, int, string, string, *domain.ForkConfig) domain.NodeCommand)
		cmd = build(ctx, port, configFile, binOverride, fork)
	}
	return cmd, args.Get(1).(domain.InstallState), args.Error(2)
}

func autoEndpoint(port int) domain.ConnectionEndpoint {
	ep := domain.NewLocalEndpoint(port)
	ep.Auto = true
	return ep
}

func commandFor(port int) domain.NodeCommand {
	return domain.NodeCommand{
		Runtime: "/usr/bin/node",
		Binary:  "node_modules/.bin/hardhat",
		Args:    []string{"node", "--port", fmt.Sprint(port)},
	}
}

type fakeProcess struct {
	pid     int
	port    int
	done    chan struct{}
	once    sync.Once
	exitErr error
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) LogFile() string       { return fmt.Sprintf("node-%d.log", p.port) }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitErr() error        { return p.exitErr }

func (p *fakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.exitErr = err
		close(p.done)
	})
}

// fakeSupervisor hands out fake processes. onSpawn decides what each one does.
type fakeSupervisor struct {
	mu      sync.Mutex
	nextPID int
	spawned []*fakeProcess
	stopped []usecase.NodeProcess
	onSpawn func(p *fakeProcess)
}

func (s *fakeSupervisor) Spawn(_ context.Context, cmd domain.NodeCommand) (usecase.NodeProcess, error) {
	s.mu.Lock()
	s.nextPID++
	var port int
	for i, arg := range cmd.Args {
		if arg == "--port" && i+1 < len(cmd.Args) {
			fmt.Sscan(cmd.Args[i+1], &port)
		}
	}
	p := &fakeProcess{pid: 1000 + s.nextPID, port: port, done: make(chan struct{})}
	s.spawned = append(s.spawned, p)
	onSpawn := s.onSpawn
	s.mu.Unlock()

	if onSpawn != nil {
		onSpawn(p)
	}
	return p, nil
}

func (s *fakeSupervisor) Stop(_ context.Context, np usecase.NodeProcess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if np == nil || np.Exited() {
		return nil
	}
	s.stopped = append(s.stopped, np)
	np.(*fakeProcess).exit(errors.New("signal: interrupt"))
	return nil
}

func (s *fakeSupervisor) spawnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned)
}

func (s *fakeSupervisor) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stopped)
}

// fakeDialer answers probes for endpoints marked healthy and hands out fake
// clients
type fakeDialer struct {
	mu      sync.Mutex
	healthy map[string]bool
	clients map[string]*fakeClient
	dials   int
	dialed  []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{healthy: map[string]bool{}, clients: map[string]*fakeClient{}}
}

func (d *fakeDialer) setHealthy(ep domain.ConnectionEndpoint, healthy bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.healthy[ep.CleanURI()] = healthy
}

func (d *fakeDialer) client(ep domain.ConnectionEndpoint) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[ep.CleanURI()]
	if !ok {
		c = newFakeClient(ep)
		d.clients[ep.CleanURI()] = c
	}
	return c
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) dialedURIs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dialed...)
}

func (d *fakeDialer) Probe(_ context.Context, ep domain.ConnectionEndpoint, _ time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.healthy[ep.CleanURI()]
}

func (d *fakeDialer) Dial(_ context.Context, ep domain.ConnectionEndpoint, _ time.Duration) (usecase.NodeClient, error) {
	c := d.client(ep)
	d.mu.Lock()
	d.dials++
	d.dialed = append(d.dialed, ep.URI())
	d.mu.Unlock()
	c.connected.Store(true)
	return c, nil
}

// fakeClient records the Hardhat verbs it receives
type fakeClient struct {
	endpoint    domain.ConnectionEndpoint
	version     string
	identityErr error
	genesis     common.Hash
	sendErr     error
	callErr     error
	trace       []domain.TraceFrame

	connected atomic.Bool
	closed    atomic.Bool

	mu    sync.Mutex
	calls []string
	args  map[string][]any
}

func newFakeClient(ep domain.ConnectionEndpoint) *fakeClient {
	return &fakeClient{
		endpoint: ep,
		version:  hardhatVersion,
		genesis:  common.HexToHash("0x01"),
		args:     map[string][]any{},
	}
}

func (c *fakeClient) record(method string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, method)
	c.args[method] = args
}

func (c *fakeClient) argsOf(method string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.args[method]
}

func (c *fakeClient) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.calls {
		if m == method {
			n++
		}
	}
	return n
}

func (c *fakeClient) Endpoint() domain.ConnectionEndpoint { return c.endpoint }
func (c *fakeClient) Close()                              { c.closed.Store(true) }

func (c *fakeClient) ClientVersion(context.Context) (string, error) { return c.version, nil }

func (c *fakeClient) VerifyIdentity(context.Context) error {
	c.record("VerifyIdentity")
	return c.identityErr
}

func (c *fakeClient) DetectPoA(context.Context) (bool, error) { return false, nil }
func (c *fakeClient) IsPoA() bool                             { return false }

func (c *fakeClient) IsConnected(context.Context) bool { return c.connected.Load() }

func (c *fakeClient) ChainID(context.Context) (uint64, error) { return domain.HardhatChainID, nil }

func (c *fakeClient) SetBlockGasLimit(_ context.Context, limit uint64) (bool, error) {
	c.record("SetBlockGasLimit", limit)
	return true, nil
}

func (c *fakeClient) Mine(_ context.Context, n uint64) error {
	c.record("Mine", n)
	return nil
}

func (c *fakeClient) Snapshot(context.Context) (domain.SnapshotID, error) {
	c.record("Snapshot")
	return "0x1", nil
}

func (c *fakeClient) Revert(_ context.Context, id domain.SnapshotID) (bool, error) {
	c.record("Revert", id)
	return true, nil
}

func (c *fakeClient) SetNextBlockTimestamp(_ context.Context, unix int64) error {
	c.record("SetNextBlockTimestamp", unix)
	return nil
}

func (c *fakeClient) SetBalance(_ context.Context, addr common.Address, wei *big.Int) (bool, error) {
	c.record("SetBalance", addr, wei)
	return true, nil
}

func (c *fakeClient) SetCode(_ context.Context, addr common.Address, code []byte) (bool, error) {
	c.record("SetCode", addr, code)
	return true, nil
}

func (c *fakeClient) ImpersonateAccount(_ context.Context, addr common.Address) (bool, error) {
	c.record("ImpersonateAccount", addr)
	return true, nil
}

func (c *fakeClient) ResetFork(_ context.Context, upstream string, blockNumber *uint64) (bool, error) {
	c.record("ResetFork", upstream, blockNumber)
	return true, nil
}

func (c *fakeClient) Metadata(context.Context) (*domain.NodeMetadata, error) {
	return &domain.NodeMetadata{ClientVersion: "2.22.2", ChainID: domain.HardhatChainID}, nil
}

func (c *fakeClient) GetBlock(_ context.Context, tag string) (*domain.Block, error) {
	c.record("GetBlock", tag)
	return &domain.Block{Hash: c.genesis}, nil
}

func (c *fakeClient) SendTransaction(_ context.Context, req domain.CallRequest) (common.Hash, error) {
	c.record("SendTransaction", req)
	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}
	return common.HexToHash("0xabc"), nil
}

func (c *fakeClient) CallContract(_ context.Context, req domain.CallRequest, block string) ([]byte, error) {
	c.record("CallContract", req, block)
	if c.callErr != nil {
		return nil, c.callErr
	}
	return common.LeftPadBytes([]byte{42}, 32), nil
}

func (c *fakeClient) EstimateGas(_ context.Context, req domain.CallRequest, block string) (uint64, error) {
	c.record("EstimateGas", req, block)
	if c.callErr != nil {
		return 0, c.callErr
	}
	return 21000, nil
}

func (c *fakeClient) TraceTransaction(_ context.Context, hash common.Hash) (json.RawMessage, error) {
	c.record("TraceTransaction", hash)
	return json.RawMessage(`{"structLogs": []}`), nil
}

func (c *fakeClient) TraceFrames(_ context.Context, hash common.Hash) iter.Seq2[domain.TraceFrame, error] {
	return func(yield func(domain.TraceFrame, error) bool) {
		c.record("TraceFrames", hash)
		for _, frame := range c.trace {
			if !yield(frame, nil) {
				return
			}
		}
	}
}

func (c *fakeClient) TraceCall(_ context.Context, req domain.CallRequest, block string) (json.RawMessage, error) {
	c.record("TraceCall", req, block)
	if c.callErr != nil {
		return nil, c.callErr
	}
	return json.RawMessage(`{"structLogs": []}`), nil
}

// fakeTranslator wraps every error in a generic VMError
type fakeTranslator struct{}

func (fakeTranslator) Translate(err error) error {
	if err == nil {
		return nil
	}
	return &domain.VMError{Kind: domain.VMErrorGeneric, Message: err.Error(), Cause: err}
}

type nopMetrics struct{}

func (nopMetrics) RecordStart(bool, time.Duration) {}
func (nopMetrics) RecordPort(string)               {}
func (nopMetrics) SessionOpened()                  {}
func (nopMetrics) SessionClosed()                  {}

// harness wires a provider factory to fakes
type harness struct {
	resolver   *MockResolver
	configFile *MockConfigFile
	builder    *MockCommandBuilder
	supervisor *fakeSupervisor
	dialer     *fakeDialer
	logs       *bytes.Buffer
	factory    *usecase.ProviderFactory
}

func newHarness() *harness {
	h := &harness{
		resolver:   new(MockResolver),
		configFile: new(MockConfigFile),
		builder:    new(MockCommandBuilder),
		supervisor: &fakeSupervisor{},
		dialer:     newFakeDialer(),
		logs:       &bytes.Buffer{},
	}
	log := slog.New(slog.NewTextHandler(&syncWriter{w: h.logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.factory = usecase.NewProviderFactory(
		h.resolver, h.configFile, h.builder, h.supervisor, h.dialer,
		fakeTranslator{}, nopMetrics{}, usecase.NopProgress{}, log,
	)
	h.configFile.On("Write", mock.Anything, mock.Anything).Return("/data/hardhat/hardhat.config.js", nil).Maybe()
	return h
}

// healthyOnSpawn makes every spawned process answer RPC on its port
func (h *harness) healthyOnSpawn() {
	h.supervisor.onSpawn = func(p *fakeProcess) {
		h.dialer.setHealthy(domain.NewLocalEndpoint(p.port), true)
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
