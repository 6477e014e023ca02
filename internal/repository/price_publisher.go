package repository

import (
	"context"
	"strconv"
	"strings"

	"OraclePull/internal/domain/models"
	pkgkafka "OraclePull/pkg/kafka"
)

type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher implements Publisher for Kafka. Messages are keyed by
// chain and token so one feed stays on one partition.
type KafkaPublisher struct {
	producer batchProducer
	topic    string
}

func NewKafkaPublisher(producer batchProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, price *models.StoredPrice) error {
	return p.PublishBatch(ctx, []*models.StoredPrice{price})
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, prices []*models.StoredPrice) error {
	msgs := make([]pkgkafka.Message, 0, len(prices))
	for _, sp := range prices {
		if sp == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: priceKey(sp), Value: sp})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func priceKey(sp *models.StoredPrice) []byte {
	return []byte(strings.ToLower(sp.Token) + "@" + strconv.FormatUint(uint64(sp.ChainID), 10))
}
