package network

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// MaxPortAttempts bounds the number of random candidates drawn per allocation
const MaxPortAttempts = 25

// Resolver decides which endpoint a provider binds to or attaches to
type Resolver struct {
	registry *PortRegistry
	log      *slog.Logger
	// randPort draws a candidate from the ephemeral range
	randPort func() int
}

// NewResolver creates a resolver backed by the shared port registry
func NewResolver(registry *PortRegistry, log *slog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		log:      log.With("component", "resolver"),
		randPort: func() int {
			return domain.EphemeralPortStart + rand.IntN(domain.EphemeralPortEnd-domain.EphemeralPortStart+1)
		},
	}
}

// IsAuto reports whether the settings ask for an ephemeral port
func (r *Resolver) IsAuto(s domain.HostSettings) bool {
	switch {
	case s.OverrideHost != "":
		return s.OverrideHost == domain.AutoHost
	case s.OverridePort != 0:
		return false
	case s.Host != "":
		return s.Host == domain.AutoHost
	default:
		return s.Port == domain.AutoHost
	}
}

// Resolve picks the endpoint for the given settings.
// Call-time overrides win over the plugin host, which wins over the deprecated
// plugin port, which wins over the default.
func (r *Resolver) Resolve(s domain.HostSettings) (domain.ConnectionEndpoint, error) {
	if r.IsAuto(s) {
		if s.OverrideHost == "" && s.Host == "" {
			r.log.Warn("`port` setting is deprecated. Please use `host` key that includes the port.")
		}
		return r.AllocateAuto()
	}

	switch {
	case s.OverrideHost != "":
		return r.explicit(s.OverrideHost)

	case s.OverridePort != 0:
		return r.explicit(fmt.Sprintf("%s:%d", domain.DefaultHost, s.OverridePort))

	case s.Host != "":
		if s.Port != "" && s.Port != strconv.Itoa(domain.DefaultPort) {
			return domain.ConnectionEndpoint{}, &domain.ConfigError{
				Key:     "port",
				Message: "cannot use deprecated `port` field with `host`. Place `port` at end of `host` instead",
			}
		}
		return r.explicit(s.Host)

	case s.Port != "":
		r.log.Warn("`port` setting is deprecated. Please use `host` key that includes the port.")
		port, err := strconv.Atoi(s.Port)
		if err != nil || port <= 0 || port > 65535 {
			return domain.ConnectionEndpoint{}, &domain.ConfigError{Key: "port", Message: fmt.Sprintf("%q is not a valid port", s.Port)}
		}
		return r.explicit(fmt.Sprintf("%s:%d", domain.DefaultHost, port))
	}

	return r.explicit(fmt.Sprintf("%s:%d", domain.DefaultHost, domain.DefaultPort))
}

func (r *Resolver) explicit(host string) (domain.ConnectionEndpoint, error) {
	ep, err := domain.ParseEndpoint(NormalizeHost(host))
	if err != nil {
		return domain.ConnectionEndpoint{}, &domain.ConfigError{Key: "host", Message: err.Error()}
	}
	if ep.IsLocal() && ep.Port != 0 {
		r.registry.Record(ep.Port)
	}
	return ep, nil
}

// AllocateAuto claims a random, never-before-used port on localhost
func (r *Resolver) AllocateAuto() (domain.ConnectionEndpoint, error) {
	tried := make([]int, 0, MaxPortAttempts)
	for range MaxPortAttempts {
		port := r.randPort()
		if r.registry.Claim(port) {
			r.log.Debug("allocated port", "port", port)
			ep := domain.NewLocalEndpoint(port)
			ep.Auto = true
			return ep, nil
		}
		if !lo.Contains(tried, port) {
			tried = append(tried, port)
		}
	}
	return domain.ConnectionEndpoint{}, &domain.NoAvailablePortError{Tried: tried}
}

// NormalizeHost adds a scheme to bare hosts and the default port to bare
// loopback hosts
func NormalizeHost(host string) string {
	if !strings.Contains(host, "://") {
		if domain.IsLoopbackHost(host) {
			host = "http://" + host
		} else {
			host = "https://" + host
		}
	}

	if !domain.IsLoopbackHost(host) {
		return host
	}
	u, err := url.Parse(host)
	if err != nil || u.Port() != "" {
		return host
	}
	u.Host = fmt.Sprintf("%s:%d", u.Hostname(), domain.DefaultPort)
	return u.String()
}

var _ usecase.EndpointResolver = (*Resolver)(nil)
