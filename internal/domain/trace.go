package domain

import "github.com/ethereum/go-ethereum/common"

// SnapshotID is the opaque token returned by evm_snapshot
type SnapshotID string

// TraceFrame is one struct log entry from debug_traceTransaction
type TraceFrame struct {
	PC      uint64            `json:"pc"`
	Op      string            `json:"op"`
	Gas     uint64            `json:"gas"`
	GasCost uint64            `json:"gasCost"`
	Depth   int               `json:"depth"`
	Stack   []string          `json:"stack"`
	Memory  []string          `json:"memory"`
	Storage map[string]string `json:"storage"`
}

// NodeMetadata is the reply of hardhat_metadata
type NodeMetadata struct {
	ClientVersion     string         `json:"clientVersion"`
	ChainID           uint64         `json:"chainId"`
	InstanceID        common.Hash    `json:"instanceId"`
	LatestBlockNumber uint64         `json:"latestBlockNumber"`
	LatestBlockHash   common.Hash    `json:"latestBlockHash"`
	ForkedNetwork     *ForkedNetwork `json:"forkedNetwork,omitempty"`
}

// ForkedNetwork describes the upstream of a forked node
type ForkedNetwork struct {
	ChainID         uint64      `json:"chainId"`
	ForkBlockNumber uint64      `json:"forkBlockNumber"`
	ForkBlockHash   common.Hash `json:"forkBlockHash"`
}

// CallRequest is a message call or transaction without a signature
type CallRequest struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *uint64         `json:"gas,omitempty"`
	GasPrice string          `json:"gasPrice,omitempty"`
	Value    string          `json:"value,omitempty"`
	Data     []byte          `json:"data,omitempty"`
}

// Block is a decoded block header as returned by eth_getBlockByNumber
type Block struct {
	Number               uint64      `json:"number"`
	Hash                 common.Hash `json:"hash"`
	ParentHash           common.Hash `json:"parentHash"`
	Timestamp            uint64      `json:"timestamp"`
	GasLimit             uint64      `json:"gasLimit"`
	GasUsed              uint64      `json:"gasUsed"`
	ExtraData            []byte      `json:"extraData"`
	ProofOfAuthorityData []byte      `json:"proofOfAuthorityData,omitempty"`
}
