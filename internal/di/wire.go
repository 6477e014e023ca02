//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"OraclePull/internal/domain/repository"
	"OraclePull/internal/service/feeds"
	"OraclePull/pkg/config"
	"OraclePull/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Oracle access
		ProvideFeedBook,
		wire.Bind(new(repository.FeedResolver), new(*feeds.Book)),
		ProvideChainlinkClient,
		ProvideWorkerPool,
		ProvideResolverConfig,
		ProvidePriceResolver,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisCache,
		ProvideRedisClient,
		ProvideCache,

		// Repositories and sinks
		ProvidePriceStorage,
		ProvidePricePublisher,
		ProvidePriceSink,
		ProvideSinkPipeline,

		// Use cases
		ProvideHub,
		ProvidePriceRefresher,
		ProvidePriceQuery,
		ProvideCandlesUseCase,
		ProvideBackfillQueue,
		ProvideKafkaConsumer,

		// HTTP
		ProvideRateLimiter,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		wire.Struct(new(server.Deps), "*"),
		server.New,
	)
	return nil, nil, nil
}
