package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	pkgkafka "OraclePull/pkg/kafka"
)

// KafkaPricesHandler persists prices published on the prices topic. A
// message holds one StoredPrice or an array of them.
type KafkaPricesHandler struct {
	topic   string
	storage drepo.PriceStorage
	metrics drepo.Metrics
}

func NewKafkaPricesHandler(topic string, storage drepo.PriceStorage, metrics drepo.Metrics) *KafkaPricesHandler {
	return &KafkaPricesHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaPricesHandler) Topic() string { return h.topic }

func (h *KafkaPricesHandler) Handle(ctx context.Context, b []byte) error {
	prices, err := decodePrices(b)
	if err != nil {
		h.recordError("consumer_unmarshal")
		return err
	}
	if len(prices) == 0 {
		return nil
	}

	start := time.Now()
	err = h.storage.StoreBatch(ctx, prices)
	if h.metrics != nil {
		h.metrics.RecordLatency("consumer_insert", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("consumer_store")
		return err
	}
	if h.metrics != nil {
		for token, n := range countByToken(prices) {
			h.metrics.RecordStored(BackendClickHouse, token, n)
		}
		newest := prices[0].Timestamp
		for _, p := range prices[1:] {
			if p.Timestamp > newest {
				newest = p.Timestamp
			}
		}
		h.metrics.RecordLatency("ingest_lag", time.Since(time.Unix(newest, 0)).Seconds())
	}
	return nil
}

func decodePrices(b []byte) ([]*models.StoredPrice, error) {
	b = bytes.TrimSpace(b)
	var prices []*models.StoredPrice
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &prices); err != nil {
			return nil, fmt.Errorf("decode prices: %w", err)
		}
	} else {
		var p models.StoredPrice
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("decode price: %w", err)
		}
		prices = []*models.StoredPrice{&p}
	}

	out := prices[:0]
	for _, p := range prices {
		if p == nil || p.Token == "" || p.Timestamp <= 0 {
			continue
		}
		if p.Timestamp > 1e11 {
			// milliseconds
			p.Timestamp /= 1000
		}
		p.Token = strings.ToLower(p.Token)
		out = append(out, p)
	}
	return out, nil
}

func (h *KafkaPricesHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaPricesHandler)(nil)
