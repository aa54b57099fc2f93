package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
)

// Connect attaches to a running Hardhat node or spawns one.
//
// Calling Connect on a connected provider is a no-op while the session is
// healthy. If the owned process died it returns domain.ErrProcessDied after
// clearing the session. An attached node that stopped answering is dropped
// and the connection starts over.
func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.session; s != nil {
		switch {
		case s.process != nil && s.process.Exited():
			p.log.Warn("hardhat node process exited", "pid", s.process.PID(), "log", s.process.LogFile())
			_ = p.clear(ctx)
			return domain.ErrProcessDied
		case s.client.IsConnected(ctx):
			return nil
		default:
			p.log.Info("hardhat node stopped answering, reconnecting", "endpoint", s.endpoint.CleanURI())
			_ = p.clear(ctx)
		}
	}

	s, err := p.connect(ctx)
	if err != nil {
		p.state = domain.StateStopped
		return err
	}

	p.session = s
	p.state = domain.StateHealthy
	p.metrics.SessionOpened()
	p.log.Debug("connected", "endpoint", s.endpoint.CleanURI(), "managed", s.process != nil)
	return nil
}

// Disconnect stops an owned process and drops the session. Safe to call
// repeatedly.
func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	return p.clear(ctx)
}

// clear must be called with p.mu held
func (p *Provider) clear(ctx context.Context) error {
	s := p.session
	p.session = nil
	p.state = domain.StateStopping

	s.client.Close()

	var err error
	if s.process != nil {
		err = p.supervisor.Stop(context.WithoutCancel(ctx), s.process)
	}

	p.state = domain.StateStopped
	p.metrics.SessionClosed()
	return err
}

func (p *Provider) connect(ctx context.Context) (*session, error) {
	configPath, err := p.ensureConfigFile()
	if err != nil {
		return nil, err
	}

	p.state = domain.StateProbing
	endpoint, err := p.resolver.Resolve(p.cfg.Host)
	if err != nil {
		return nil, err
	}

	if !endpoint.Auto {
		p.metrics.RecordPort(portKind(endpoint))
		if p.dialer.Probe(ctx, endpoint, probeTimeout) {
			p.log.Info("connecting to existing hardhat node", "endpoint", endpoint.CleanURI())
			return p.attach(ctx, endpoint)
		}
		if !endpoint.IsLocal() {
			return nil, &domain.ProviderError{Message: fmt.Sprintf("Failed to connect to remote Hardhat node at '%s'", endpoint.CleanURI())}
		}
	}

	if !p.cfg.ManageProcess {
		return nil, &domain.ProviderError{Message: fmt.Sprintf("Failed to connect to Hardhat node at '%s' and process management is disabled", endpoint.CleanURI())}
	}

	return p.start(ctx, endpoint, configPath)
}

func portKind(endpoint domain.ConnectionEndpoint) string {
	switch {
	case endpoint.Auto:
		return "auto"
	case endpoint.IsLocal():
		return "explicit"
	default:
		return "remote"
	}
}

func (p *Provider) ensureConfigFile() (string, error) {
	if p.cfg.ConfigFile != "" {
		return p.configFile.Ensure(p.cfg.ConfigFile, p.cfg.Node)
	}
	return p.configFile.Write(ManagedConfigFile(p.cfg.DataDir), p.cfg.Node)
}

// start launches the node, retrying on a fresh port when the endpoint is auto
func (p *Provider) start(ctx context.Context, endpoint domain.ConnectionEndpoint, configPath string) (*session, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.ProcessAttempts; attempt++ {
		if attempt > 1 && endpoint.Auto {
			next, err := p.resolver.AllocateAuto()
			if err != nil {
				return nil, err
			}
			endpoint = next
		}
		if endpoint.Auto {
			p.metrics.RecordPort("auto")
		}

		s, err := p.spawn(ctx, endpoint, configPath)
		if err == nil {
			return s, nil
		}
		if !domain.IsRetryable(err) {
			return nil, err
		}

		var conflict *domain.PortConflictError
		if errors.As(err, &conflict) && !endpoint.Auto {
			return nil, err
		}

		lastErr = err
		p.log.Info("retrying hardhat subprocess startup", "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("failed to start hardhat node after %d attempts: %w", p.cfg.ProcessAttempts, lastErr)
}

func (p *Provider) spawn(ctx context.Context, endpoint domain.ConnectionEndpoint, configPath string) (*session, error) {
	if p.cfg.Fork != nil {
		if err := p.cfg.Fork.Validate(endpoint); err != nil {
			return nil, err
		}
	}

	p.state = domain.StateSpawning
	cmd, installState, err := p.builder.Build(ctx, endpoint.Port, configPath, p.cfg.BinPath, p.cfg.Fork)
	p.installState = installState
	if err != nil {
		return nil, err
	}

	started := time.Now()
	proc, err := p.supervisor.Spawn(ctx, cmd)
	if err != nil {
		p.metrics.RecordStart(false, 0)
		return nil, err
	}

	p.state = domain.StateWaitingHealthy
	p.progress.OnProgress(ctx, ProgressEvent{
		Stage:   string(domain.StateWaitingHealthy),
		Message: fmt.Sprintf("Waiting for Hardhat node at %s", endpoint.CleanURI()),
		Spinner: true,
	})
	err = p.waitHealthy(ctx, endpoint, proc)
	p.progress.OnProgress(ctx, ProgressEvent{Stage: string(domain.StateWaitingHealthy)})

	if err != nil {
		p.metrics.RecordStart(false, time.Since(started))
		if stopErr := p.supervisor.Stop(context.WithoutCancel(ctx), proc); stopErr != nil {
			p.log.Warn("failed to stop hardhat node", "pid", proc.PID(), "error", stopErr)
		}

		var timeout *domain.SubprocessTimeoutError
		if errors.As(err, &timeout) && p.installState == domain.InstallUncertain {
			return nil, &domain.NotInstalledError{Err: err}
		}
		return nil, err
	}
	p.metrics.RecordStart(true, time.Since(started))

	s, err := p.attach(ctx, endpoint)
	if err != nil {
		if stopErr := p.supervisor.Stop(context.WithoutCancel(ctx), proc); stopErr != nil {
			p.log.Warn("failed to stop hardhat node", "pid", proc.PID(), "error", stopErr)
		}
		return nil, err
	}
	s.process = proc
	return s, nil
}

// waitHealthy polls the endpoint until it answers, the process exits or the
// start timeout passes. The caller owns cleanup.
func (p *Provider) waitHealthy(ctx context.Context, endpoint domain.ConnectionEndpoint, proc NodeProcess) error {
	deadline := time.NewTimer(p.cfg.StartTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if p.dialer.Probe(ctx, endpoint, probeTimeout) {
			return nil
		}

		select {
		case <-proc.Done():
			return &domain.SubprocessError{
				Message: fmt.Sprintf("hardhat node exited before it became ready, see %s", proc.LogFile()),
				Err:     proc.ExitErr(),
			}
		case <-deadline.C:
			return &domain.SubprocessTimeoutError{Endpoint: endpoint.CleanURI(), Timeout: p.cfg.StartTimeout}
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Provider) attach(ctx context.Context, endpoint domain.ConnectionEndpoint) (*session, error) {
	p.state = domain.StateAttaching

	client, err := p.dialer.Dial(ctx, endpoint, p.cfg.RequestTimeout)
	if err != nil {
		return nil, &domain.ProviderError{Message: fmt.Sprintf("failed to connect to Hardhat node at %s", endpoint.CleanURI()), Err: err}
	}

	if err := client.VerifyIdentity(ctx); err != nil {
		client.Close()
		return nil, err
	}

	version, err := client.ClientVersion(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}

	if _, err := client.DetectPoA(ctx); err != nil {
		p.log.Debug("proof-of-authority detection failed", "error", err)
	}

	if p.cfg.Fork != nil {
		if err := p.checkGenesis(ctx, client); err != nil {
			client.Close()
			return nil, err
		}
	}

	return &session{
		endpoint:      endpoint,
		client:        client,
		clientVersion: version,
		unlocked:      mapset.NewSet[common.Address](),
	}, nil
}

// checkGenesis warns when the fork does not share the upstream genesis block
func (p *Provider) checkGenesis(ctx context.Context, local NodeClient) error {
	upstreamEndpoint, err := domain.ParseEndpoint(p.cfg.Fork.UpstreamURL)
	if err != nil {
		return &domain.ProviderError{Message: "invalid upstream provider URL", Err: err}
	}

	upstream, err := p.dialer.Dial(ctx, upstreamEndpoint, p.cfg.RequestTimeout)
	if err != nil {
		return &domain.ProviderError{Message: "unable to connect to upstream provider", Err: err}
	}
	defer upstream.Close()

	want, err := upstream.GetBlock(ctx, "0x0")
	if err != nil {
		return &domain.ProviderError{Message: "unable to get genesis block", Err: err}
	}
	got, err := local.GetBlock(ctx, "0x0")
	if err != nil {
		return &domain.ProviderError{Message: "unable to get genesis block", Err: err}
	}

	if got.Hash != want.Hash {
		p.log.Warn("upstream network has mismatching genesis block, this could be an issue with hardhat",
			"network", p.cfg.Fork.Network, "upstream", want.Hash.Hex(), "local", got.Hash.Hex())
	}
	return nil
}
