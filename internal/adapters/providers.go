package adapters

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trebuchet-org/treb-hardhat/internal/adapters/hardhat"
	"github.com/trebuchet-org/treb-hardhat/internal/adapters/network"
	"github.com/trebuchet-org/treb-hardhat/internal/adapters/process"
	"github.com/trebuchet-org/treb-hardhat/internal/adapters/progress"
	"github.com/trebuchet-org/treb-hardhat/internal/adapters/rpc"
	"github.com/trebuchet-org/treb-hardhat/internal/adapters/vmerror"
	"github.com/trebuchet-org/treb-hardhat/internal/config"
	domainconfig "github.com/trebuchet-org/treb-hardhat/internal/domain/config"
	"github.com/trebuchet-org/treb-hardhat/internal/metrics"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// ProvideProjectPath provides the project path from RuntimeConfig
func ProvideProjectPath(cfg *domainconfig.RuntimeConfig) string {
	return cfg.ProjectRoot
}

// ProvideRegistry provides a fresh metrics registry per app. It is both
// the registerer for node metrics and the gatherer behind /metrics.
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideCommandBuilder builds node commands rooted at the project
func ProvideCommandBuilder(installer *hardhat.Installer, cfg *domainconfig.RuntimeConfig) *hardhat.CommandBuilder {
	return hardhat.NewCommandBuilder(installer, cfg.ProjectRoot, cfg.DataDir)
}

// NetworkSet provides host resolution and the shared attempted-ports registry
var NetworkSet = wire.NewSet(
	network.NewPortRegistry,
	network.NewResolver,
	wire.Bind(new(usecase.EndpointResolver), new(*network.Resolver)),
)

// HardhatSet provides hardhat install detection, config files and command lines
var HardhatSet = wire.NewSet(
	hardhat.NewInstaller,
	hardhat.NewConfigFile,
	wire.Bind(new(usecase.ConfigFileWriter), new(*hardhat.ConfigFile)),
	ProvideCommandBuilder,
	wire.Bind(new(usecase.CommandBuilder), new(*hardhat.CommandBuilder)),
)

// ProcessSet provides the node process supervisor
var ProcessSet = wire.NewSet(
	process.NewSupervisor,
	wire.Bind(new(usecase.ProcessSupervisor), new(*process.Supervisor)),
)

// RPCSet provides health verification and the RPC session client
var RPCSet = wire.NewSet(
	rpc.NewVerifier,
	wire.Bind(new(usecase.NodeDialer), new(*rpc.Verifier)),
)

// VMErrorSet provides the error translator
var VMErrorSet = wire.NewSet(
	vmerror.ProvideABIRegistry,
	vmerror.ProvideTranslator,
	wire.Bind(new(usecase.ErrorTranslator), new(*vmerror.Translator)),
)

// ConfigSet provides configuration-based implementations
var ConfigSet = wire.NewSet(
	config.NewForkResolver,
	wire.Bind(new(usecase.ForkResolver), new(*config.ForkResolver)),
)

// MetricsSet provides node metrics
var MetricsSet = wire.NewSet(
	ProvideRegistry,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
	metrics.NewNodeMetrics,
	wire.Bind(new(usecase.SessionMetrics), new(*metrics.NodeMetrics)),
)

// ProgressSet provides the progress sink
var ProgressSet = wire.NewSet(
	progress.NewSink,
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	ProvideProjectPath,

	NetworkSet,
	HardhatSet,
	ProcessSet,
	RPCSet,
	VMErrorSet,
	ConfigSet,
	MetricsSet,
	ProgressSet,
)
