package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	Asset string `json:"asset"`
	From  int64  `json:"from"`
}

func TestParsePayload(t *testing.T) {
	w, err := ParsePayload[window](json.RawMessage(`{"asset":"BTC","from":10}`))
	require.NoError(t, err)
	assert.Equal(t, window{Asset: "BTC", From: 10}, *w)

	_, err = ParsePayload[window](nil)
	assert.Error(t, err)
	_, err = ParsePayload[window](json.RawMessage(`[`))
	assert.Error(t, err)
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	q := NewRedisQueue(nil, QueueConfig{}, client, ModeProducerOnly, WithKeyPrefix("test:queue"))

	_, err := q.Enqueue(context.Background(), "backfill", window{Asset: "BTC"})
	assert.ErrorContains(t, err, "not running")
	assert.Equal(t, "test:queue:messages", q.queueKey())
	assert.Equal(t, "test:queue:dlq", q.deadLetterKey())
	assert.Equal(t, "producer-only", q.mode.String())
}

func TestMessageEnvelopeKeepsRawPayload(t *testing.T) {
	msg := Message{ID: "1", Type: "backfill", Payload: json.RawMessage(`{"asset":"ETH","from":5}`)}
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	w, err := ParsePayload[window](back.Payload)
	require.NoError(t, err)
	assert.Equal(t, "ETH", w.Asset)
}
