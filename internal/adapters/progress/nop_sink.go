package progress

import (
	"github.com/trebuchet-org/treb-hardhat/internal/domain/config"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// NewNopSink creates a new no-op progress sink
func NewNopSink() usecase.ProgressSink {
	return usecase.NopProgress{}
}

// NewSink picks the spinner for humans and stays quiet for --json
func NewSink(cfg *config.RuntimeConfig) usecase.ProgressSink {
	if cfg.JSON {
		return NewNopSink()
	}
	return NewSpinnerProgressReporter()
}
