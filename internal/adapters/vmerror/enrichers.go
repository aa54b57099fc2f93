package vmerror

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
)

// panicReasons are the compiler-inserted Panic(uint256) codes
var panicReasons = map[uint64]string{
	0x00: "Generic compiler panic",
	0x01: "Assertion error",
	0x11: "Arithmetic operation underflowed or overflowed outside of an unchecked block",
	0x12: "Division or modulo division by zero",
	0x21: "Tried to convert a value into an enum, but the value was too big or negative",
	0x22: "Incorrectly encoded storage byte array",
	0x31: ".pop() was called on an empty array",
	0x32: "Array accessed at an out-of-bounds or negative index",
	0x41: "Too much memory was allocated, or an array was created that is too large",
	0x51: "Called a zero-initialized variable of internal function type",
}

// PanicTable names Solidity panic codes
type PanicTable struct{}

func (PanicTable) Enrich(e *domain.VMError) (*domain.VMError, error) {
	if e.Kind != domain.VMErrorPanic {
		return nil, nil
	}
	code, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(e.PanicCode), "0x"), 16, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid panic code %q: %w", e.PanicCode, err)
	}
	reason, ok := panicReasons[code]
	if !ok {
		return nil, nil
	}
	e.Message = fmt.Sprintf("%s (%s)", reason, e.PanicCode)
	return e, nil
}

// ABIRegistry resolves custom error selectors against registered contract ABIs
type ABIRegistry struct {
	mu     sync.RWMutex
	errors map[[4]byte]abi.Error
}

// NewABIRegistry creates an empty registry
func NewABIRegistry() *ABIRegistry {
	return &ABIRegistry{errors: make(map[[4]byte]abi.Error)}
}

// Register adds every custom error of a contract ABI
func (r *ABIRegistry) Register(contract abi.ABI) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range contract.Errors {
		var selector [4]byte
		copy(selector[:], e.ID[:4])
		r.errors[selector] = e
	}
}

// RegisterJSON parses a JSON ABI and registers its errors
func (r *ABIRegistry) RegisterJSON(reader io.Reader) error {
	parsed, err := abi.JSON(reader)
	if err != nil {
		return fmt.Errorf("failed to parse ABI: %w", err)
	}
	r.Register(parsed)
	return nil
}

// Len returns the number of known custom errors
func (r *ABIRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.errors)
}

func (r *ABIRegistry) Enrich(e *domain.VMError) (*domain.VMError, error) {
	if e.Kind != domain.VMErrorCustom || e.RevertPayload == "" {
		return nil, nil
	}

	data, err := hexutil.Decode(e.RevertPayload)
	if err != nil {
		return nil, fmt.Errorf("invalid revert payload %q: %w", e.RevertPayload, err)
	}
	if len(data) < 4 {
		return nil, nil
	}

	var selector [4]byte
	copy(selector[:], data[:4])

	r.mu.RLock()
	customErr, ok := r.errors[selector]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	args, err := customErr.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s arguments: %w", customErr.Name, err)
	}

	formatted := make([]string, len(args))
	for i, arg := range args {
		formatted[i] = fmt.Sprint(arg)
	}
	e.Message = fmt.Sprintf("%s(%s)", customErr.Name, strings.Join(formatted, ", "))
	return e, nil
}
