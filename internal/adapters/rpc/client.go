package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/metrics"
)

// DefaultRequestTimeout applies when a client is dialed without a timeout
const DefaultRequestTimeout = 30 * time.Second

// Client is a JSON-RPC client bound to one Hardhat node endpoint.
// Each provider session owns its own Client; clients are never shared.
type Client struct {
	endpoint domain.ConnectionEndpoint
	rpc      *gethrpc.Client
	timeout  time.Duration
	metrics  *metrics.NodeMetrics
	log      *slog.Logger

	// poa is set once proof-of-authority extraData was detected
	poa atomic.Bool
}

// Dial opens a client against the endpoint. It does not contact the node.
func Dial(ctx context.Context, endpoint domain.ConnectionEndpoint, timeout time.Duration, m *metrics.NodeMetrics, log *slog.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c, err := gethrpc.DialOptions(ctx, endpoint.URI(), gethrpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint.CleanURI(), err)
	}

	return &Client{
		endpoint: endpoint,
		rpc:      c,
		timeout:  timeout,
		metrics:  m,
		log:      log.With("endpoint", endpoint.CleanURI()),
	}, nil
}

// Endpoint returns the endpoint the client talks to
func (c *Client) Endpoint() domain.ConnectionEndpoint {
	return c.endpoint
}

// Call invokes method and decodes the result into result
func (c *Client) Call(ctx context.Context, result any, method string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	c.metrics.RecordRPC(method, time.Since(start), err)
	if err != nil {
		c.log.Debug("rpc call failed", "method", method, "error", err)
	}
	return err
}

// CallRaw invokes method and returns the undecoded result
func (c *Client) CallRaw(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, &raw, method, args...); err != nil {
		return nil, err
	}
	return raw, nil
}

// Close releases the underlying transport
func (c *Client) Close() {
	c.rpc.Close()
}
