package di

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OraclePull/internal/usecase"
	pkgch "OraclePull/pkg/clickhouse"
	"OraclePull/pkg/config"
	"OraclePull/pkg/metrics"
)

const testYAML = `
environment: test
oracle:
  rpc_url: http://127.0.0.1:1
  pool_size: 4
networks:
  list:
    - name: BSC
      chain_id: 56
      feeds:
        BTC:
          feed: "0x264990fbd0A4796A3E3d8E37C4d5F87a3aCa5Ebf"
          token: "0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c"
refresh:
  assets: [BTC]
redis:
  enabled: true
queue:
  enabled: true
metrics:
  enabled: false
`

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

// TestProvidersBuildApplication wires everything that does not need a live
// backend: the node client dials lazily, ClickHouse runs over sqlmock and
// redis is never contacted before Start.
func TestProvidersBuildApplication(t *testing.T) {
	cfg := loadTestConfig(t)

	l, err := ProvideLogger(cfg)
	require.NoError(t, err)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	book, err := ProvideFeedBook(cfg, l)
	require.NoError(t, err)
	client, closeClient := ProvideChainlinkClient(cfg)
	t.Cleanup(closeClient)
	pool, stopPool := ProvideWorkerPool(cfg)
	t.Cleanup(stopPool)
	rc, err := ProvideResolverConfig(cfg)
	require.NoError(t, err)
	resolver := ProvidePriceResolver(book, client, pool, rc, m, l)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectExec("CREATE DATABASE IF NOT EXISTS oracle").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS oracle.prices").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := ProvidePriceStorage(pkgch.NewClientFromDB(db, "oracle"), cfg, l)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)
	pub := ProvidePricePublisher(producer, cfg)
	assert.Nil(t, pub)

	sink, err := ProvidePriceSink(pub, store, m, cfg, l)
	require.NoError(t, err)
	assert.Equal(t, usecase.BackendClickHouse, sink.Backend())
	pipeline := ProvideSinkPipeline(sink, m, cfg, l)

	c, closeCache := ProvideCache(cfg, nil)
	t.Cleanup(closeCache)
	hub := ProvideHub(cfg, l)
	refresher := ProvidePriceRefresher(resolver, book, pipeline, m, c, hub, cfg, l)
	query := ProvidePriceQuery(store, book, c, m, cfg, l)
	candles := ProvideCandlesUseCase(query, l)

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"127.0.0.1:1"}})
	t.Cleanup(func() { _ = rdb.Close() })
	q := ProvideBackfillQueue(cfg, rdb, refresher, l)
	require.NotNil(t, q)

	consumer, err := ProvideKafkaConsumer(cfg, store, m, l)
	require.NoError(t, err)
	assert.Nil(t, consumer)

	limiter := ProvideRateLimiter(cfg)
	handlers := ProvideHandlers(cfg, l, candles, resolver, book, limiter, q, store, refresher, hub)
	srv := ProvideHTTPServer(cfg, l, handlers)

	var routes []string
	for _, r := range srv.Echo().Routes() {
		routes = append(routes, r.Method+" "+r.Path)
	}
	sort.Strings(routes)
	assert.Subset(t, routes, []string{
		http.MethodGet + " /api/candles/:symbol",
		http.MethodGet + " /api/prices/:symbol",
		http.MethodPost + " /api/backfill/:symbol",
		http.MethodGet + " /health",
		http.MethodGet + " /ws/prices",
	})
	assert.NotContains(t, routes, http.MethodGet+" /metrics")
}

func TestOptionalProvidersStayOffWhenDisabled(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Queue.Enabled = false
	cfg.Redis.Enabled = false

	rc, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)
	assert.Nil(t, ProvideRedisClient(rc))
	assert.Nil(t, ProvideBackfillQueue(cfg, nil, nil, nil))

	c, closeCache := ProvideCache(cfg, rc)
	t.Cleanup(closeCache)
	assert.NotNil(t, c)
}
