//go:build wireinject
// +build wireinject

package di

import (
	"AlphaPull/pkg/config"
	"AlphaPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Stores
		ProvideRawStore,
		ProvideProcessedStore,
		ProvideSignalLog,
		ProvideCursorStore,

		// Sources and model
		ProvideAdapters,
		ProvidePredictor,
		ProvideInstruments,

		// Use cases
		ProvideCoordinator,
		ProvideEngine,
		ProvideSignalGenerator,
		ProvidePipeline,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
