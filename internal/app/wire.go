//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"
	"github.com/trebuchet-org/treb-hardhat/internal/adapters"
	"github.com/trebuchet-org/treb-hardhat/internal/config"
	"github.com/trebuchet-org/treb-hardhat/internal/logging"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// InitApp creates a fully wired App instance
func InitApp(v *viper.Viper) (*App, error) {
	wire.Build(
		// Configuration
		config.Provider,
		logging.LoggingSet,

		// Adapters
		adapters.AllAdapters,

		// Use cases
		usecase.NewProviderFactory,
		usecase.NewManageNode,

		// App
		NewApp,
	)
	return nil, nil
}
