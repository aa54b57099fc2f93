package domain

import (
	"fmt"
	"strings"
)

// ForkSuffix marks network names that run as a fork of an upstream network
const ForkSuffix = "-fork"

// ForkConfig parameterizes a provider that forks an upstream network
type ForkConfig struct {
	Ecosystem                string  `json:"ecosystem"`
	Network                  string  `json:"network"`
	UpstreamURL              string  `json:"upstreamUrl"`
	BlockNumber              *uint64 `json:"blockNumber,omitempty"`
	EnableHardhatDeployments bool    `json:"enableHardhatDeployments,omitempty"`
}

// UpstreamNetwork returns the network name without the fork suffix
func (f *ForkConfig) UpstreamNetwork() string {
	return strings.TrimSuffix(f.Network, ForkSuffix)
}

// Validate checks the fork config against the local endpoint
func (f *ForkConfig) Validate(local ConnectionEndpoint) error {
	if f.UpstreamURL == "" {
		return &ProviderError{Message: fmt.Sprintf("upstream provider for '%s:%s' does not have a connection URL", f.Ecosystem, f.Network)}
	}
	if sameEndpoint(f.UpstreamURL, local.URI()) {
		return &ProviderError{Message: "invalid upstream-fork URL: can't be same as local Hardhat node"}
	}
	return nil
}

func sameEndpoint(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSuffix(s, "/"))
		s = strings.TrimPrefix(strings.TrimPrefix(s, "http://"), "https://")
		return strings.ReplaceAll(s, "localhost", DefaultHost)
	}
	return norm(a) == norm(b)
}

// IsForkNetwork reports whether a network name denotes a fork
func IsForkNetwork(network string) bool {
	return strings.HasSuffix(network, ForkSuffix)
}
