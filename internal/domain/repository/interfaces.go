package repository

import (
	"context"
	"errors"

	"OraclePull/internal/domain/models"
)

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrUnknownAsset   = errors.New("unknown asset")
)

// RoundStore is a read-only view of one feed's round sequence.
// Any call may fail transiently; an unpopulated round reports timestamp 0.
type RoundStore interface {
	Latest(ctx context.Context) (models.RoundPayload, error)
	TimestampOf(ctx context.Context, round models.RoundID) (int64, error)
	DataOf(ctx context.Context, round models.RoundID) (models.RoundPayload, error)
}

// RoundStoreFactory binds a RoundStore to a feed.
type RoundStoreFactory interface {
	ForFeed(ctx context.Context, feed models.Feed) (RoundStore, error)
}

// FeedResolver maps network + asset names to feed locations.
type FeedResolver interface {
	ResolveFeed(network, asset string) (models.Feed, error)
	ResolveToken(network, asset string) (string, error)
	Assets(network string) ([]string, error)
	ChainID(network string) (uint32, error)
	NetworkForChain(chainID uint32) string
	DefaultNetwork() string
}

type Publisher interface {
	Publish(ctx context.Context, p *models.StoredPrice) error
	PublishBatch(ctx context.Context, prices []*models.StoredPrice) error
	Close() error
}

type PriceStorage interface {
	Init(ctx context.Context) error // ensure tables
	StoreBatch(ctx context.Context, prices []*models.StoredPrice) error
	Query(ctx context.Context, chainID uint32, token string, from, to int64) ([]*models.StoredPrice, error)
	HasToken(ctx context.Context, chainID uint32, token string) (bool, error)
	LatestTimestamp(ctx context.Context, chainID uint32, token string) (int64, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordRPCCall(op, result string)
	RecordWaveFailure(stage string)
	RecordBudgetExhausted(stage string)
	RecordPointsFetched(asset string, n int)
	RecordStored(backend, token string, n int)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
