package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OraclePull/internal/domain/models"
	pkgkafka "OraclePull/pkg/kafka"
)

type recordingProducer struct {
	topic  string
	msgs   []pkgkafka.Message
	closed bool
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingProducer) Close() error {
	p.closed = true
	return nil
}

func TestKafkaPublisherKeysByFeed(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaPublisher(prod, "oracle.prices")

	err := pub.PublishBatch(context.Background(), []*models.StoredPrice{
		{ChainID: 56, Token: "0xABC", Timestamp: 100, Value: 1.5},
		nil,
		{ChainID: 1, Token: "0xdef", Timestamp: 101, Value: 2},
	})
	require.NoError(t, err)
	require.Len(t, prod.msgs, 2)
	assert.Equal(t, "oracle.prices", prod.topic)
	assert.Equal(t, "0xabc@56", string(prod.msgs[0].Key))
	assert.Equal(t, "0xdef@1", string(prod.msgs[1].Key))

	require.NoError(t, pub.Publish(context.Background(), &models.StoredPrice{ChainID: 56, Token: "0xabc"}))
	assert.Len(t, prod.msgs, 3)

	require.NoError(t, pub.Close())
	assert.True(t, prod.closed)
}

func TestKafkaPublisherEmptyBatch(t *testing.T) {
	prod := &recordingProducer{}
	require.NoError(t, NewKafkaPublisher(prod, "t").PublishBatch(context.Background(), nil))
	assert.Empty(t, prod.topic)
}
