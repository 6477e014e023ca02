package usecase

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	applogger "OraclePull/pkg/logger"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"

	defaultFeedDecimals = 8
)

// PriceWriter accepts stored-form prices for persistence.
type PriceWriter interface {
	StoreBatch(ctx context.Context, prices []*models.StoredPrice) error
}

// PriceSink routes stored prices to the configured backend: a direct
// ClickHouse insert or a Kafka publish picked up by the prices consumer.
type PriceSink struct {
	pub     drepo.Publisher
	store   drepo.PriceStorage
	metrics drepo.Metrics
	backend string
	l       *applogger.Logger
}

func NewPriceSink(
	pub drepo.Publisher,
	store drepo.PriceStorage,
	metrics drepo.Metrics,
	backend string,
	l *applogger.Logger,
) (*PriceSink, error) {
	switch backend {
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("kafka backend requires a publisher")
		}
	case BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("clickhouse backend requires storage")
		}
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &PriceSink{pub: pub, store: store, metrics: metrics, backend: backend, l: l}, nil
}

func (s *PriceSink) Backend() string { return s.backend }

// StoreBatch hands prices to the backend. Nil entries are ignored.
func (s *PriceSink) StoreBatch(ctx context.Context, prices []*models.StoredPrice) error {
	prices = dropNil(prices)
	if len(prices) == 0 {
		return nil
	}
	start := time.Now()
	var err error
	switch s.backend {
	case BackendKafka:
		err = s.pub.PublishBatch(ctx, prices)
	default:
		err = s.store.StoreBatch(ctx, prices)
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("sink_" + s.backend)
		}
		return fmt.Errorf("store %d prices via %s: %w", len(prices), s.backend, err)
	}

	if s.metrics != nil {
		for token, n := range countByToken(prices) {
			s.metrics.RecordStored(s.backend, token, n)
		}
		s.metrics.RecordLatency("sink_"+s.backend, time.Since(start).Seconds())
	}
	return nil
}

func (s *PriceSink) Close() error {
	var firstErr error
	if s.pub != nil {
		firstErr = s.pub.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ToStoredPrices converts resolved points into the stored form for feed.
// The token is lower-cased and the value is scaled down by the feed's
// decimals.
func ToStoredPrices(feed models.Feed, points []models.PricePoint) []*models.StoredPrice {
	out := make([]*models.StoredPrice, 0, len(points))
	for _, p := range points {
		if p.Value == nil || p.Timestamp <= 0 {
			continue
		}
		token := p.Token
		if token == "" {
			token = feed.Token
		}
		sp := &models.StoredPrice{
			ChainID:   feed.ChainID,
			Token:     strings.ToLower(token),
			Timestamp: p.Timestamp,
			Value:     ScaleValue(p.Value, feed.Decimals),
			Raw:       p.Value.String(),
		}
		if p.RoundID != nil {
			sp.RoundID = p.RoundID.String()
		}
		out = append(out, sp)
	}
	return out
}

// ScaleValue returns raw / 10^decimals; zero decimals means the feed
// default of 8.
func ScaleValue(raw *big.Int, decimals int32) float64 {
	if raw == nil {
		return 0
	}
	if decimals <= 0 {
		decimals = defaultFeedDecimals
	}
	return decimal.NewFromBigInt(raw, -decimals).InexactFloat64()
}

func dropNil(prices []*models.StoredPrice) []*models.StoredPrice {
	out := prices[:0:0]
	for _, p := range prices {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func countByToken(prices []*models.StoredPrice) map[string]int {
	out := make(map[string]int)
	for _, p := range prices {
		if p != nil {
			out[p.Token]++
		}
	}
	return out
}
