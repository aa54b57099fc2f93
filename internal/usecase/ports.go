package usecase

import (
	"context"
	"encoding/json"
	"iter"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
)

// EndpointResolver turns host settings into a concrete endpoint
type EndpointResolver interface {
	Resolve(settings domain.HostSettings) (domain.ConnectionEndpoint, error)
	IsAuto(settings domain.HostSettings) bool
	AllocateAuto() (domain.ConnectionEndpoint, error)
}

// ConfigFileWriter ensures the hardhat config file the node is launched with
type ConfigFileWriter interface {
	// Ensure creates the file if missing and only validates an existing one
	Ensure(path string, cfg domain.NodeConfig) (string, error)
	// Write regenerates a tool-managed file when its content differs
	Write(path string, cfg domain.NodeConfig) (string, error)
}

// CommandBuilder assembles the node command line
type CommandBuilder interface {
	Build(ctx context.Context, port int, configFile, binOverride string, fork *domain.ForkConfig) (domain.NodeCommand, domain.InstallState, error)
}

// NodeProcess is a spawned node
type NodeProcess interface {
	PID() int
	LogFile() string
	Done() <-chan struct{}
	Exited() bool
	ExitErr() error
}

// ProcessSupervisor spawns and stops node processes
type ProcessSupervisor interface {
	Spawn(ctx context.Context, cmd domain.NodeCommand) (NodeProcess, error)
	Stop(ctx context.Context, p NodeProcess) error
}

// NodeDialer probes endpoints and opens sessions on them
type NodeDialer interface {
	Probe(ctx context.Context, endpoint domain.ConnectionEndpoint, timeout time.Duration) bool
	Dial(ctx context.Context, endpoint domain.ConnectionEndpoint, timeout time.Duration) (NodeClient, error)
}

// NodeClient speaks the Hardhat RPC dialect
type NodeClient interface {
	Endpoint() domain.ConnectionEndpoint
	Close()

	ClientVersion(ctx context.Context) (string, error)
	VerifyIdentity(ctx context.Context) error
	DetectPoA(ctx context.Context) (bool, error)
	IsPoA() bool
	IsConnected(ctx context.Context) bool

	ChainID(ctx context.Context) (uint64, error)
	SetBlockGasLimit(ctx context.Context, limit uint64) (bool, error)
	Mine(ctx context.Context, n uint64) error
	Snapshot(ctx context.Context) (domain.SnapshotID, error)
	Revert(ctx context.Context, id domain.SnapshotID) (bool, error)
	SetNextBlockTimestamp(ctx context.Context, unix int64) error
	SetBalance(ctx context.Context, addr common.Address, wei *big.Int) (bool, error)
	SetCode(ctx context.Context, addr common.Address, code []byte) (bool, error)
	ImpersonateAccount(ctx context.Context, addr common.Address) (bool, error)
	ResetFork(ctx context.Context, upstream string, blockNumber *uint64) (bool, error)
	Metadata(ctx context.Context) (*domain.NodeMetadata, error)
	GetBlock(ctx context.Context, tag string) (*domain.Block, error)
	SendTransaction(ctx context.Context, req domain.CallRequest) (common.Hash, error)
	CallContract(ctx context.Context, req domain.CallRequest, block string) ([]byte, error)
	EstimateGas(ctx context.Context, req domain.CallRequest, block string) (uint64, error)

	TraceTransaction(ctx context.Context, hash common.Hash) (json.RawMessage, error)
	TraceFrames(ctx context.Context, hash common.Hash) iter.Seq2[domain.TraceFrame, error]
	TraceCall(ctx context.Context, req domain.CallRequest, block string) (json.RawMessage, error)
}

// ErrorTranslator classifies raw node errors. Translate returns nil for nil.
type ErrorTranslator interface {
	Translate(err error) error
}

// SessionMetrics records session level events
type SessionMetrics interface {
	RecordStart(ok bool, took time.Duration)
	RecordPort(kind string)
	SessionOpened()
	SessionClosed()
}

// Progress tracking interfaces

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Stage   string
	Message string
	Spinner bool
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
	Info(message string)
	Error(message string)
}

// NopProgress is a no-op implementation of ProgressSink
type NopProgress struct{}

func (NopProgress) OnProgress(context.Context, ProgressEvent) {}
func (NopProgress) Info(string)                               {}
func (NopProgress) Error(string)                              {}
