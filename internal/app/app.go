package app

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/trebuchet-org/treb-hardhat/internal/domain/config"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// App is the main application container that holds all use cases
type App struct {
	Config  *config.RuntimeConfig
	Log     *slog.Logger
	Metrics prometheus.Gatherer

	ManageNode *usecase.ManageNode
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	log *slog.Logger,
	metrics prometheus.Gatherer,
	manageNode *usecase.ManageNode,
) (*App, error) {
	return &App{
		Config:     cfg,
		Log:        log,
		Metrics:    metrics,
		ManageNode: manageNode,
	}, nil
}
