package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	"OraclePull/pkg/cache"
	applogger "OraclePull/pkg/logger"
)

const SourceChainlink = "chainlink"

var (
	ErrInvalidSource = errors.New("invalid source")
	ErrInvalidSymbol = errors.New("invalid symbol")
	ErrInvalidChain  = errors.New("invalid chain")
)

// PriceQuery serves stored prices for a chain, source and symbol, with a
// short-lived cache in front of storage.
type PriceQuery struct {
	storage drepo.PriceStorage
	feeds   drepo.FeedResolver
	cache   cache.Service
	ttl     time.Duration
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewPriceQuery(
	storage drepo.PriceStorage,
	feeds drepo.FeedResolver,
	c cache.Service,
	ttl time.Duration,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *PriceQuery {
	if l == nil {
		l = applogger.Nop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PriceQuery{storage: storage, feeds: feeds, cache: c, ttl: ttl, metrics: metrics, l: l}
}

// GetPrices returns prices in [from, to], oldest first. A symbol whose
// token has no stored rows yields an empty result, not an error.
func (q *PriceQuery) GetPrices(ctx context.Context, from, to int64, chainID uint32, source, symbol string) ([]*models.StoredPrice, error) {
	start := time.Now()
	if source != SourceChainlink {
		return nil, fmt.Errorf("%w %s, valid options are: %s", ErrInvalidSource, source, SourceChainlink)
	}
	network := q.feeds.NetworkForChain(chainID)
	if id, err := q.feeds.ChainID(network); err != nil || id != chainID {
		return nil, fmt.Errorf("%w %d", ErrInvalidChain, chainID)
	}
	token, err := q.feeds.ResolveToken(network, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w %s", ErrInvalidSymbol, symbol)
	}
	token = strings.ToLower(token)

	key := cache.GenerateKeyWithParams("prices", from, to, chainID, source, symbol)
	var cached []*models.StoredPrice
	if q.cache != nil {
		if err := q.cache.Get(ctx, key, &cached); err == nil {
			q.l.Debug("prices from cache", applogger.String("key", key))
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			q.l.Warn("price cache read failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	ok, err := q.storage.HasToken(ctx, chainID, token)
	if err != nil {
		return nil, fmt.Errorf("check token %s: %w", token, err)
	}
	if !ok {
		q.l.Info("no stored prices for token", applogger.String("token", token), applogger.String("symbol", symbol))
		return []*models.StoredPrice{}, nil
	}

	prices, err := q.storage.Query(ctx, chainID, token, from, to)
	if err != nil {
		if q.metrics != nil {
			q.metrics.RecordError("query")
		}
		return nil, fmt.Errorf("query prices: %w", err)
	}
	if prices == nil {
		prices = []*models.StoredPrice{}
	}

	if q.cache != nil {
		if err := q.cache.Set(ctx, key, prices, q.ttl); err != nil {
			q.l.Warn("price cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	if q.metrics != nil {
		q.metrics.RecordLatency("query", time.Since(start).Seconds())
	}
	q.l.Debug("get prices",
		applogger.String("key", key),
		applogger.Int("rows", len(prices)),
		applogger.Duration("took_ms", time.Since(start)))
	return prices, nil
}
