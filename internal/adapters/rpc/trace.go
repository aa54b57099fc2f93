package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/gjson"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
)

// TraceTransaction returns the raw debug_traceTransaction reply
func (c *Client) TraceTransaction(ctx context.Context, hash common.Hash) (json.RawMessage, error) {
	return c.CallRaw(ctx, "debug_traceTransaction", hash)
}

// TraceCall returns the raw debug_traceCall reply for a call at block
func (c *Client) TraceCall(ctx context.Context, req domain.CallRequest, block string) (json.RawMessage, error) {
	if block == "" {
		block = "latest"
	}
	return c.CallRaw(ctx, "debug_traceCall", toCallArg(req), block)
}

// TraceFrames fetches the transaction trace each time the sequence is ranged
// over and yields its frames
func (c *Client) TraceFrames(ctx context.Context, hash common.Hash) iter.Seq2[domain.TraceFrame, error] {
	return func(yield func(domain.TraceFrame, error) bool) {
		raw, err := c.TraceTransaction(ctx, hash)
		if err != nil {
			yield(domain.TraceFrame{}, err)
			return
		}
		for frame, err := range StructLogs(raw) {
			if !yield(frame, err) {
				return
			}
		}
	}
}

// StructLogs iterates the structLogs array of a trace reply
func StructLogs(raw []byte) iter.Seq2[domain.TraceFrame, error] {
	return func(yield func(domain.TraceFrame, error) bool) {
		logs := gjson.GetBytes(raw, "structLogs")
		if !logs.IsArray() {
			yield(domain.TraceFrame{}, fmt.Errorf("trace reply has no structLogs"))
			return
		}

		for _, entry := range logs.Array() {
			frame := domain.TraceFrame{
				PC:      entry.Get("pc").Uint(),
				Op:      entry.Get("op").String(),
				Gas:     entry.Get("gas").Uint(),
				GasCost: entry.Get("gasCost").Uint(),
				Depth:   int(entry.Get("depth").Int()),
				Stack:   stringSlice(entry.Get("stack")),
				Memory:  stringSlice(entry.Get("memory")),
			}
			if storage := entry.Get("storage"); storage.IsObject() {
				frame.Storage = make(map[string]string)
				storage.ForEach(func(k, v gjson.Result) bool {
					frame.Storage[k.String()] = v.String()
					return true
				})
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

func stringSlice(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	items := r.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}
