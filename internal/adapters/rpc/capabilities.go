package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
)

// ChainID returns eth_chainId
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := c.Call(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// SetBlockGasLimit calls evm_setBlockGasLimit
func (c *Client) SetBlockGasLimit(ctx context.Context, limit uint64) (bool, error) {
	var ok bool
	if err := c.Call(ctx, &ok, "evm_setBlockGasLimit", hexutil.EncodeUint64(limit)); err != nil {
		return false, err
	}
	return ok, nil
}

// Mine mines n blocks with hardhat_mine
func (c *Client) Mine(ctx context.Context, n uint64) error {
	return c.Call(ctx, nil, "hardhat_mine", EncodeBlockCount(n))
}

// EncodeBlockCount renders n as hex without leading zeros; 0 becomes "0x".
// Hardhat rejects zero-padded quantities.
func EncodeBlockCount(n uint64) string {
	return "0x" + strings.TrimLeft(strconv.FormatUint(n, 16), "0")
}

// Snapshot calls evm_snapshot
func (c *Client) Snapshot(ctx context.Context) (domain.SnapshotID, error) {
	var id string
	if err := c.Call(ctx, &id, "evm_snapshot"); err != nil {
		return "", err
	}
	return domain.SnapshotID(id), nil
}

// Revert calls evm_revert
func (c *Client) Revert(ctx context.Context, id domain.SnapshotID) (bool, error) {
	var ok bool
	if err := c.Call(ctx, &ok, "evm_revert", string(id)); err != nil {
		return false, err
	}
	return ok, nil
}

// SetNextBlockTimestamp calls evm_setNextBlockTimestamp
func (c *Client) SetNextBlockTimestamp(ctx context.Context, unix int64) error {
	return c.Call(ctx, nil, "evm_setNextBlockTimestamp", unix)
}

// SetBalance calls hardhat_setBalance with a wei amount
func (c *Client) SetBalance(ctx context.Context, addr common.Address, wei *big.Int) (bool, error) {
	if wei.Sign() < 0 {
		return false, fmt.Errorf("balance must not be negative: %s", wei)
	}
	var ok bool
	if err := c.Call(ctx, &ok, "hardhat_setBalance", addr, hexutil.EncodeBig(wei)); err != nil {
		return false, err
	}
	return ok, nil
}

// SetCode calls hardhat_setCode
func (c *Client) SetCode(ctx context.Context, addr common.Address, code []byte) (bool, error) {
	var ok bool
	if err := c.Call(ctx, &ok, "hardhat_setCode", addr, hexutil.Encode(code)); err != nil {
		return false, err
	}
	return ok, nil
}

// ImpersonateAccount calls hardhat_impersonateAccount
func (c *Client) ImpersonateAccount(ctx context.Context, addr common.Address) (bool, error) {
	var ok bool
	if err := c.Call(ctx, &ok, "hardhat_impersonateAccount", addr); err != nil {
		return false, err
	}
	return ok, nil
}

type forkingParams struct {
	JSONRPCURL  string  `json:"jsonRpcUrl"`
	BlockNumber *uint64 `json:"blockNumber,omitempty"`
}

type resetParams struct {
	Forking forkingParams `json:"forking"`
}

// ResetFork re-points a forked node at upstream, optionally pinned to a block
func (c *Client) ResetFork(ctx context.Context, upstream string, blockNumber *uint64) (bool, error) {
	var ok bool
	params := resetParams{Forking: forkingParams{JSONRPCURL: upstream, BlockNumber: blockNumber}}
	if err := c.Call(ctx, &ok, "hardhat_reset", params); err != nil {
		return false, err
	}
	return ok, nil
}

// Metadata calls hardhat_metadata
func (c *Client) Metadata(ctx context.Context) (*domain.NodeMetadata, error) {
	var md domain.NodeMetadata
	if err := c.Call(ctx, &md, "hardhat_metadata"); err != nil {
		return nil, err
	}
	return &md, nil
}

// GetBlock fetches a block header by number or tag ("latest", "0x0")
func (c *Client) GetBlock(ctx context.Context, tag string) (*domain.Block, error) {
	raw, err := c.CallRaw(ctx, "eth_getBlockByNumber", tag, false)
	if err != nil {
		return nil, err
	}
	return decodeBlock(raw, c.IsPoA())
}

// CallContract runs eth_call at block and returns the return data
func (c *Client) CallContract(ctx context.Context, req domain.CallRequest, block string) ([]byte, error) {
	if block == "" {
		block = "latest"
	}
	var out hexutil.Bytes
	if err := c.Call(ctx, &out, "eth_call", toCallArg(req), block); err != nil {
		return nil, err
	}
	return out, nil
}

// EstimateGas calls eth_estimateGas, at the pending block when block is empty
func (c *Client) EstimateGas(ctx context.Context, req domain.CallRequest, block string) (uint64, error) {
	args := []any{toCallArg(req)}
	if block != "" {
		args = append(args, block)
	}
	var gas hexutil.Uint64
	if err := c.Call(ctx, &gas, "eth_estimateGas", args...); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// SendTransaction submits an unsigned transaction from an unlocked account
func (c *Client) SendTransaction(ctx context.Context, req domain.CallRequest) (common.Hash, error) {
	var hash common.Hash
	if err := c.Call(ctx, &hash, "eth_sendTransaction", toCallArg(req)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func toCallArg(req domain.CallRequest) map[string]any {
	arg := map[string]any{"from": req.From}
	if req.To != nil {
		arg["to"] = req.To
	}
	if req.Gas != nil {
		arg["gas"] = hexutil.Uint64(*req.Gas)
	}
	if req.GasPrice != "" {
		arg["gasPrice"] = req.GasPrice
	}
	if req.Value != "" {
		arg["value"] = req.Value
	}
	if len(req.Data) > 0 {
		arg["data"] = hexutil.Bytes(req.Data)
	}
	return arg
}

var errBlockNotFound = errors.New("block not found")

func decodeBlock(raw []byte, poa bool) (*domain.Block, error) {
	result := gjson.ParseBytes(raw)
	if !result.IsObject() {
		return nil, errBlockNotFound
	}

	block := &domain.Block{
		Hash:       common.HexToHash(result.Get("hash").String()),
		ParentHash: common.HexToHash(result.Get("parentHash").String()),
	}

	quantities := []struct {
		field string
		dst   *uint64
	}{
		{"number", &block.Number},
		{"timestamp", &block.Timestamp},
		{"gasLimit", &block.GasLimit},
		{"gasUsed", &block.GasUsed},
	}
	for _, q := range quantities {
		v := result.Get(q.field).String()
		if v == "" {
			continue
		}
		n, err := hexutil.DecodeUint64(v)
		if err != nil {
			return nil, fmt.Errorf("invalid block %s %q: %w", q.field, v, err)
		}
		*q.dst = n
	}

	if extra := result.Get("extraData").String(); extra != "" {
		data, err := hexutil.Decode(extra)
		if err != nil {
			return nil, fmt.Errorf("invalid block extraData: %w", err)
		}
		block.ExtraData = data
	}
	if pad := result.Get("proofOfAuthorityData").String(); pad != "" {
		data, err := hexutil.Decode(pad)
		if err != nil {
			return nil, fmt.Errorf("invalid block proofOfAuthorityData: %w", err)
		}
		block.ProofOfAuthorityData = data
	}

	if poa && block.ProofOfAuthorityData == nil && len(block.ExtraData) > 0 {
		block.ProofOfAuthorityData = block.ExtraData
		block.ExtraData = nil
	}

	return block, nil
}
