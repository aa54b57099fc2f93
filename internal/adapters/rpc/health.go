package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/metrics"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// ProbeTimeout bounds a single health probe
const ProbeTimeout = 2 * time.Second

// maxExtraDataHexLen is 32 bytes of extraData as 0x-prefixed hex
const maxExtraDataHexLen = 2 + 32*2

// Verifier checks that endpoints answer and are really Hardhat nodes
type Verifier struct {
	metrics *metrics.NodeMetrics
	log     *slog.Logger
}

// NewVerifier creates a verifier
func NewVerifier(m *metrics.NodeMetrics, log *slog.Logger) *Verifier {
	return &Verifier{metrics: m, log: log.With("component", "verifier")}
}

// Dial opens a client for a session
func (v *Verifier) Dial(ctx context.Context, endpoint domain.ConnectionEndpoint, timeout time.Duration) (usecase.NodeClient, error) {
	c, err := Dial(ctx, endpoint, timeout, v.metrics, v.log)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Probe reports whether anything answers eth_chainId on the endpoint.
// Any failure means not ready; it never returns an error.
func (v *Verifier) Probe(ctx context.Context, endpoint domain.ConnectionEndpoint, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = ProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := Dial(ctx, endpoint, timeout, nil, v.log)
	if err != nil {
		v.metrics.RecordProbe(false)
		return false
	}
	defer c.Close()

	var chainID hexutil.Uint64
	ok := c.rpc.CallContext(ctx, &chainID, "eth_chainId") == nil
	v.metrics.RecordProbe(ok)
	return ok
}

// ClientVersion returns web3_clientVersion
func (c *Client) ClientVersion(ctx context.Context) (string, error) {
	var version string
	if err := c.Call(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}
	return version, nil
}

// VerifyIdentity confirms the endpoint is served by Hardhat. It returns
// a *domain.PortConflictError when another client answers and wraps
// domain.ErrNodeUnreachable when nothing does.
func (c *Client) VerifyIdentity(ctx context.Context) error {
	version, err := c.ClientVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", domain.ErrNodeUnreachable, c.endpoint.CleanURI(), err)
	}
	if !strings.Contains(strings.ToLower(version), "hardhat") {
		return &domain.PortConflictError{Endpoint: c.endpoint.CleanURI(), ClientVersion: version}
	}
	return nil
}

// DetectPoA inspects the genesis and latest blocks for oversized extraData.
// When found, GetBlock moves extraData into ProofOfAuthorityData.
func (c *Client) DetectPoA(ctx context.Context) (bool, error) {
	for _, tag := range []string{"0x0", "latest"} {
		raw, err := c.CallRaw(ctx, "eth_getBlockByNumber", tag, false)
		if err != nil {
			return false, fmt.Errorf("failed to fetch block %s: %w", tag, err)
		}
		if isPoABlock(raw) {
			c.log.Debug("proof-of-authority block format detected", "block", tag)
			c.poa.Store(true)
			return true, nil
		}
	}
	return false, nil
}

// IsPoA reports whether PoA decoding is active
func (c *Client) IsPoA() bool {
	return c.poa.Load()
}

// IsConnected re-checks the endpoint on demand
func (c *Client) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	var chainID hexutil.Uint64
	return c.rpc.CallContext(ctx, &chainID, "eth_chainId") == nil
}

func isPoABlock(raw []byte) bool {
	block := gjson.ParseBytes(raw)
	if block.Get("proofOfAuthorityData").Exists() {
		return true
	}
	return len(block.Get("extraData").String()) > maxExtraDataHexLen
}

var (
	_ usecase.NodeDialer = (*Verifier)(nil)
	_ usecase.NodeClient = (*Client)(nil)
)
