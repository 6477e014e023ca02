package di

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/redis/go-redis/v9"

	"OraclePull/internal/domain/models"
	"OraclePull/internal/domain/repository"
	"OraclePull/internal/handler/api"
	"OraclePull/internal/handler/ws"
	mid "OraclePull/internal/middleware"
	internalrepo "OraclePull/internal/repository"
	"OraclePull/internal/service/chainlink"
	"OraclePull/internal/service/feeds"
	"OraclePull/internal/service/ratelimit"
	"OraclePull/internal/usecase"
	"OraclePull/pkg/cache"
	pkgch "OraclePull/pkg/clickhouse"
	"OraclePull/pkg/config"
	xhttp "OraclePull/pkg/http"
	pkgkafka "OraclePull/pkg/kafka"
	applogger "OraclePull/pkg/logger"
	"OraclePull/pkg/metrics"
	"OraclePull/pkg/queue"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideFeedBook indexes the networks section. ORACLE_RPC_URL overrides
// only the default network's endpoint.
func ProvideFeedBook(cfg *config.Config, l *applogger.Logger) (*feeds.Book, error) {
	networks := make([]feeds.Network, 0, len(cfg.Networks.List))
	for _, n := range cfg.Networks.List {
		assets := make(map[string]feeds.Asset, len(n.Feeds))
		for name, a := range n.Feeds {
			assets[name] = feeds.Asset{Feed: a.Feed, Token: a.Token, Decimals: a.Decimals}
		}
		networks = append(networks, feeds.Network{Name: n.Name, ChainID: n.ChainID, RPCURL: n.RPCURL, Feeds: assets})
	}
	book, err := feeds.NewBook(cfg.Networks.Default, networks, l)
	if err != nil {
		return nil, fmt.Errorf("address book: %w", err)
	}
	if cfg.Oracle.RPCURL != "" {
		if err := book.WithRPC(book.DefaultNetwork(), cfg.Oracle.RPCURL); err != nil {
			return nil, fmt.Errorf("address book: %w", err)
		}
	}
	return book, nil
}

// ProvideChainlinkClient shares one node connection per RPC url.
func ProvideChainlinkClient(cfg *config.Config) (*chainlink.Client, func()) {
	client := chainlink.NewClient(cfg.Oracle.RPCURL)
	return client, client.Close
}

// ProvideWorkerPool bounds concurrent RPC calls across every resolve.
func ProvideWorkerPool(cfg *config.Config) (pond.Pool, func()) {
	pool := pond.NewPool(cfg.Oracle.PoolSize)
	return pool, pool.StopAndWait
}

func ProvideResolverConfig(cfg *config.Config) (models.ResolverConfig, error) {
	return cfg.ResolverConfig()
}

func ProvidePriceResolver(
	book repository.FeedResolver,
	client *chainlink.Client,
	pool pond.Pool,
	rc models.ResolverConfig,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PriceResolver {
	return usecase.NewPriceResolver(book, client, pool, rc, m, l.With(applogger.String("component", "resolver")))
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// prices schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePriceStorage creates the ClickHouse prices repository.
func ProvidePriceStorage(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.PriceStorage, error) {
	store := internalrepo.NewClickHouseStorage(chClient, l.With(applogger.String("component", "storage")),
		internalrepo.WithChunkSize(cfg.Backend.BatchSize))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePricePublisher creates the Kafka publisher repository.
func ProvidePricePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

func ProvidePriceSink(
	pub repository.Publisher,
	store repository.PriceStorage,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) (*usecase.PriceSink, error) {
	return usecase.NewPriceSink(pub, store, m, cfg.Backend.Type, l.With(applogger.String("component", "sink")))
}

// ProvideSinkPipeline puts validation, dedup and retry buffering in front
// of the sink.
func ProvideSinkPipeline(sink *usecase.PriceSink, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *mid.SinkPipeline {
	return mid.NewSinkPipeline(sink, m, l, mid.WithBufferSize(cfg.Backend.BufferSize))
}

// ProvideRedisCache connects to redis, or returns nil when disabled. The
// connection is closed by the cache cleanup.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideRedisClient shares the cache connection with the job queue.
func ProvideRedisClient(rc *cache.RedisCache) redis.UniversalClient {
	if rc == nil {
		return nil
	}
	return rc.Client()
}

// ProvideCache layers an in-process LRU over redis, or runs memory-only
// without redis.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) (cache.Service, func()) {
	var svc cache.Service
	if rc != nil {
		svc = cache.NewLayeredCache(rc, cache.WithLayeredMemory(cfg.Cache.MaxKeys, cfg.Cache.TTL))
	} else {
		svc = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxKeys),
			cache.WithMemoryDefaultTTL(cfg.Cache.TTL),
			cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		)
	}
	return svc, func() { _ = svc.Close() }
}

func ProvideHub(cfg *config.Config, l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l.With(applogger.String("component", "ws")),
		ws.WithPingInterval(cfg.WS.PingInterval),
		ws.WithSendBuffer(cfg.WS.SendBuffer),
		ws.WithAllowedOrigins(cfg.WS.AllowedOrigins),
	)
}

func ProvidePriceRefresher(
	resolver *usecase.PriceResolver,
	book repository.FeedResolver,
	pipeline *mid.SinkPipeline,
	m repository.Metrics,
	lock cache.Service,
	hub *ws.Hub,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.PriceRefresher {
	rc := cfg.Refresh
	return usecase.NewPriceRefresher(resolver, book, pipeline, m, usecase.RefresherConfig{
		Network:       rc.Network,
		Assets:        rc.Assets,
		Schedule:      rc.Schedule,
		Lookback:      rc.Lookback,
		InitialLag:    rc.InitialLag,
		Backfill:      rc.Backfill,
		BackfillStep:  rc.BackfillStep,
		MaxIterations: rc.MaxIterations,
		FailurePause:  rc.FailurePause,
		MaxFailures:   rc.MaxFailures,
		BaseRetry:     rc.BaseRetry,
		LockTTL:       rc.LockTTL,
	}, l, usecase.WithLocker(lock), usecase.WithBroadcaster(hub))
}

func ProvidePriceQuery(
	store repository.PriceStorage,
	book repository.FeedResolver,
	c cache.Service,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.PriceQuery {
	return usecase.NewPriceQuery(store, book, c, cfg.Cache.TTL, m, l.With(applogger.String("component", "query")))
}

func ProvideCandlesUseCase(q *usecase.PriceQuery, l *applogger.Logger) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(q, l)
}

// ProvideBackfillQueue returns nil when the queue is disabled.
func ProvideBackfillQueue(
	cfg *config.Config,
	client redis.UniversalClient,
	refresher *usecase.PriceRefresher,
	l *applogger.Logger,
) *queue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.KeyPrefix+"queue:"+cfg.Queue.Name))
	q.RegisterJob(usecase.NewBackfillJob(refresher, func() int64 { return time.Now().Unix() }, l))
	return q
}

// ProvideKafkaConsumer returns nil unless the consumer is enabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	store repository.PriceStorage,
	m repository.Metrics,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	cc := cfg.Kafka.Consumer
	if !cc.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaPricesHandler(cfg.Kafka.Topic, store, m))
	return consumer, nil
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst)
}

// ProvideHandlers collects every HTTP route group.
func ProvideHandlers(
	cfg *config.Config,
	l *applogger.Logger,
	candles *usecase.CandlesUseCase,
	resolver *usecase.PriceResolver,
	book repository.FeedResolver,
	limiter *ratelimit.Limiter,
	q *queue.RedisQueue,
	store repository.PriceStorage,
	refresher *usecase.PriceRefresher,
	hub *ws.Hub,
) []xhttp.Handler {
	handlers := []xhttp.Handler{
		api.NewCandlesEchoHandler(l, candles),
		api.NewPricesEchoHandler(l, resolver, book, limiter),
		api.NewHealthEchoHandler(l, store, refresher, cfg.Backend.Type),
		hub,
	}
	if q != nil {
		handlers = append(handlers, api.NewBackfillEchoHandler(l, q, book, cfg.Refresh.Network))
	}
	return handlers
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(cfg.Server.CORS),
	)
}
