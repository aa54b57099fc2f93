package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultRevertMessage is used when a revert carries no reason
const DefaultRevertMessage = "Transaction failed."

// VMErrorKind classifies a failed call or transaction
type VMErrorKind string

const (
	VMErrorGeneric            VMErrorKind = "vm-error"
	VMErrorOutOfGas           VMErrorKind = "out-of-gas"
	VMErrorRevertedWithReason VMErrorKind = "reverted-with-reason"
	VMErrorRevertedDefault    VMErrorKind = "reverted-without-reason"
	VMErrorPanic              VMErrorKind = "panic"
	VMErrorCustom             VMErrorKind = "custom-error"
)

// VMError is a classified node failure
type VMError struct {
	Kind    VMErrorKind
	Message string
	// RevertPayload holds raw return data for custom errors
	RevertPayload string
	PanicCode     string
	SourceTxn     *common.Hash
	Cause         error
}

func (e *VMError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Kind == VMErrorOutOfGas:
		return "The transaction ran out of gas."
	case e.Kind == VMErrorRevertedDefault:
		return DefaultRevertMessage
	case e.Cause != nil:
		return e.Cause.Error()
	default:
		return fmt.Sprintf("virtual machine error (%s)", e.Kind)
	}
}

func (e *VMError) Unwrap() error { return e.Cause }

// IsContractLogic reports whether the error came from contract code
func (e *VMError) IsContractLogic() bool {
	switch e.Kind {
	case VMErrorRevertedWithReason, VMErrorRevertedDefault, VMErrorPanic, VMErrorCustom:
		return true
	}
	return false
}
