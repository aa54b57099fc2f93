package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/domain/config"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

var _ usecase.ForkResolver = (*ForkResolver)(nil)

// ForkResolver turns "<network>-fork" names into fork settings using the
// [hardhat.fork] table and [rpc_endpoints]
type ForkResolver struct {
	hardhat   config.HardhatConfig
	endpoints map[string]string
}

// NewForkResolver creates a ForkResolver for Wire dependency injection
func NewForkResolver(cfg *config.RuntimeConfig) *ForkResolver {
	return &ForkResolver{hardhat: cfg.Hardhat, endpoints: cfg.RPCEndpoints}
}

// ResolveFork resolves the upstream URL and block for a fork network
func (r *ForkResolver) ResolveFork(ecosystem, network string) (*domain.ForkConfig, error) {
	if !domain.IsForkNetwork(network) {
		return nil, &domain.ConfigError{Key: "network", Message: fmt.Sprintf("%q is not a fork network", network)}
	}

	fork := &domain.ForkConfig{Ecosystem: ecosystem, Network: network}
	upstream := fork.UpstreamNetwork()

	settings, hasSettings := r.hardhat.ForkSettingsFor(ecosystem, upstream)
	provider := upstream
	if hasSettings {
		fork.BlockNumber = settings.BlockNumber
		fork.EnableHardhatDeployments = settings.EnableHardhatDeployments
		if settings.UpstreamProvider != "" {
			provider = settings.UpstreamProvider
		}
	}

	url, err := r.upstreamURL(provider)
	if err != nil {
		return nil, err
	}
	fork.UpstreamURL = url
	return fork, nil
}

// upstreamURL accepts a literal URL or an [rpc_endpoints] name
func (r *ForkResolver) upstreamURL(provider string) (string, error) {
	if strings.Contains(provider, "://") {
		return provider, nil
	}

	url, ok := r.endpoints[provider]
	if !ok {
		msg := fmt.Sprintf("no rpc endpoint named %q, add %s = \"${%s}\" to [rpc_endpoints]",
			provider, provider, GenerateEnvVarName(provider))
		if suggestions := r.suggest(provider); len(suggestions) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
		}
		return "", &domain.ConfigError{Key: "rpc_endpoints", Message: msg}
	}

	if envVar, unset := DetectEnvVar(url); unset {
		return "", &domain.ConfigError{
			Key:     "rpc_endpoints." + provider,
			Message: fmt.Sprintf("environment variable %s is not set", envVar),
		}
	}
	return url, nil
}

func (r *ForkResolver) suggest(name string) []string {
	names := make([]string, 0, len(r.endpoints))
	for n := range r.endpoints {
		names = append(names, n)
	}
	sort.Strings(names)

	matches := fuzzy.Find(name, names)
	suggestions := make([]string, 0, min(len(matches), 3))
	for _, m := range matches {
		if len(suggestions) == 3 {
			break
		}
		suggestions = append(suggestions, m.Str)
	}
	return suggestions
}
