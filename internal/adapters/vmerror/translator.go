package vmerror

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/tidwall/gjson"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/metrics"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

const (
	executionRevertedPrefix = "execution reverted: "
	panicPrefix             = "Error: VM Exception while processing transaction: reverted with panic code "
	reasonPrefix            = "Error: VM Exception while processing transaction: reverted with reason string "
	noReasonMessage         = "Transaction reverted without a reason string"
	outOfGasMessage         = "Transaction ran out of gas"
	customErrorMarker       = "reverted with an unrecognized custom error"
	returnDataMarker        = "(return data:"
)

// Enricher resolves a classified error into a more descriptive one, usually
// from compiler metadata. It returns nil when it has nothing to add.
type Enricher interface {
	Enrich(e *domain.VMError) (*domain.VMError, error)
}

// EnricherFunc adapts a function to Enricher
type EnricherFunc func(e *domain.VMError) (*domain.VMError, error)

func (f EnricherFunc) Enrich(e *domain.VMError) (*domain.VMError, error) { return f(e) }

// Option tweaks a single classification
type Option func(*options)

type options struct {
	sourceTxn *common.Hash
	enrich    bool
}

// WithSourceTxn attaches the hash of the transaction that failed
func WithSourceTxn(hash common.Hash) Option {
	return func(o *options) { o.sourceTxn = &hash }
}

// WithoutEnrichment skips the enricher chain
func WithoutEnrichment() Option {
	return func(o *options) { o.enrich = false }
}

// Translator classifies raw node errors into domain.VMError values
type Translator struct {
	enrichers []Enricher
	metrics   *metrics.NodeMetrics
	log       *slog.Logger
}

// NewTranslator creates a translator that consults enrichers in order
func NewTranslator(log *slog.Logger, m *metrics.NodeMetrics, enrichers ...Enricher) *Translator {
	return &Translator{
		enrichers: enrichers,
		metrics:   m,
		log:       log.With("component", "vmerror"),
	}
}

// ProvideTranslator builds the default translator with the Solidity panic
// table and the ABI custom error registry
func ProvideTranslator(log *slog.Logger, m *metrics.NodeMetrics, registry *ABIRegistry) *Translator {
	return NewTranslator(log, m, PanicTable{}, registry)
}

// Translate classifies err and returns it as an error value; nil stays nil
func (t *Translator) Translate(err error) error {
	if err == nil {
		return nil
	}
	return t.Classify(err)
}

// Classify turns err into a VMError. It never returns nil for a non-nil err.
func (t *Translator) Classify(err error, opts ...Option) *domain.VMError {
	if err == nil {
		return nil
	}

	o := options{enrich: true}
	for _, opt := range opts {
		opt(&o)
	}

	message, data := details(err)
	if o.sourceTxn == nil {
		o.sourceTxn = txHash(data)
	}

	vmErr := t.classify(err, message, data, o)
	vmErr.SourceTxn = o.sourceTxn
	if vmErr.Cause == nil {
		vmErr.Cause = err
	}

	t.metrics.RecordVMError(string(vmErr.Kind))
	return vmErr
}

func (t *Translator) classify(err error, message string, data any, o options) *domain.VMError {
	if message == "" {
		return &domain.VMError{Kind: domain.VMErrorGeneric, Cause: err}
	}

	message = strings.TrimPrefix(message, executionRevertedPrefix)

	switch {
	case strings.HasPrefix(message, panicPrefix):
		rest := strings.TrimPrefix(message, panicPrefix)
		code := strings.TrimSpace(strings.SplitN(rest, "(", 2)[0])
		e := &domain.VMError{Kind: domain.VMErrorPanic, PanicCode: code, Message: code}
		if enriched := t.enrich(e, o); enriched != nil {
			return enriched
		}
		e.Message = rest
		return e

	case strings.HasPrefix(message, reasonPrefix):
		reason := strings.Trim(strings.TrimPrefix(message, reasonPrefix), "'")
		e := &domain.VMError{Kind: domain.VMErrorRevertedWithReason, Message: reason}
		return t.enrichOr(e, o)

	case strings.Contains(message, noReasonMessage):
		e := &domain.VMError{Kind: domain.VMErrorRevertedDefault, Message: domain.DefaultRevertMessage}
		return t.enrichOr(e, o)

	case message == outOfGasMessage:
		return &domain.VMError{Kind: domain.VMErrorOutOfGas}

	case strings.Contains(message, customErrorMarker) && strings.Contains(message, returnDataMarker):
		parts := strings.Split(message, returnDataMarker)
		payload := strings.TrimSpace(strings.TrimRight(parts[len(parts)-1], "/)"))
		e := &domain.VMError{Kind: domain.VMErrorCustom, RevertPayload: payload}
		enriched := t.enrichOr(e, o)
		if enriched.Message == "" || enriched.Message == domain.DefaultRevertMessage {
			enriched.Message = payload
		}
		return enriched
	}

	if reason, ok := revertReason(data); ok {
		return &domain.VMError{Kind: domain.VMErrorRevertedWithReason, Message: reason}
	}

	return &domain.VMError{Kind: domain.VMErrorGeneric, Message: message}
}

func (t *Translator) enrichOr(e *domain.VMError, o options) *domain.VMError {
	if enriched := t.enrich(e, o); enriched != nil {
		return enriched
	}
	return e
}

// enrich runs the chain and returns the first result. Enricher errors and
// panics are logged and skipped.
func (t *Translator) enrich(e *domain.VMError, o options) *domain.VMError {
	if !o.enrich {
		return nil
	}
	for _, en := range t.enrichers {
		candidate := *e
		enriched, err := safeEnrich(en, &candidate)
		if err != nil {
			t.log.Debug("error enrichment failed", "kind", e.Kind, "error", err)
			continue
		}
		if enriched != nil {
			return enriched
		}
	}
	return nil
}

func safeEnrich(en Enricher, e *domain.VMError) (enriched *domain.VMError, err error) {
	defer func() {
		if r := recover(); r != nil {
			enriched, err = nil, fmt.Errorf("enricher panicked: %v", r)
		}
	}()
	return en.Enrich(e)
}

// details extracts the message and error data from err. Messages that are
// JSON objects (as some transports report them) are unwrapped.
func details(err error) (string, any) {
	message := err.Error()
	var data any

	var de gethrpc.DataError
	if errors.As(err, &de) {
		data = de.ErrorData()
	}

	if trimmed := strings.TrimSpace(message); strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		parsed := gjson.Parse(trimmed)
		message = parsed.Get("message").String()
		if data == nil && parsed.Get("data").Exists() {
			data = parsed.Get("data").Value()
		}
	}
	return message, data
}

func txHash(data any) *common.Hash {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	s, ok := m["txHash"].(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return nil
	}
	hash := common.HexToHash(s)
	return &hash
}

func revertData(data any) []byte {
	var s string
	switch v := data.(type) {
	case string:
		s = v
	case map[string]any:
		s, _ = v["data"].(string)
	}
	if s == "" {
		return nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil
	}
	return b
}

// revertReason decodes Error(string) revert data
func revertReason(data any) (string, bool) {
	b := revertData(data)
	if len(b) < 4 {
		return "", false
	}
	reason, err := abi.UnpackRevert(b)
	if err != nil {
		return "", false
	}
	return reason, true
}

var _ usecase.ErrorTranslator = (*Translator)(nil)
