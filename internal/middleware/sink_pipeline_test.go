package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OraclePull/internal/domain/models"
)

type flakyWriter struct {
	mu    sync.Mutex
	fails int
	rows  []*models.StoredPrice
	calls int
}

func (w *flakyWriter) StoreBatch(_ context.Context, prices []*models.StoredPrice) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fails > 0 {
		w.fails--
		return errors.New("clickhouse unavailable")
	}
	w.rows = append(w.rows, prices...)
	return nil
}

func (w *flakyWriter) stored() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

func price(ts int64) *models.StoredPrice {
	return &models.StoredPrice{ChainID: 56, Token: "0xabc", Timestamp: ts, Value: 1}
}

func TestPipelineFiltersAndDedupes(t *testing.T) {
	w := &flakyWriter{}
	p := NewSinkPipeline(w, nil, nil)

	err := p.StoreBatch(context.Background(), []*models.StoredPrice{
		price(10), price(10), price(11), nil,
		{ChainID: 56, Token: "", Timestamp: 12},
		{ChainID: 56, Token: "0xabc", Timestamp: 0},
		{ChainID: 56, Token: "0xabc", Timestamp: 13, Value: math.NaN()},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, w.stored())
}

func TestPipelineEmptyBatchSkipsDownstream(t *testing.T) {
	w := &flakyWriter{}
	p := NewSinkPipeline(w, nil, nil)
	require.NoError(t, p.StoreBatch(context.Background(), []*models.StoredPrice{nil}))
	assert.Zero(t, w.calls)
}

func TestPipelineBuffersAndRetries(t *testing.T) {
	w := &flakyWriter{fails: 2}
	p := NewSinkPipeline(w, nil, nil, WithBackoff(time.Millisecond, 5*time.Millisecond))

	err := p.StoreBatch(context.Background(), []*models.StoredPrice{price(1), price(2)})
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	assert.Eventually(t, func() bool { return w.stored() == 2 }, time.Second, 5*time.Millisecond)
	p.Stop(context.Background())
	assert.Zero(t, p.Buffered())
}

func TestPipelineDropsWhenBufferFull(t *testing.T) {
	w := &flakyWriter{fails: 10}
	p := NewSinkPipeline(w, nil, nil, WithBufferSize(1))

	require.Error(t, p.StoreBatch(context.Background(), []*models.StoredPrice{price(1)}))
	require.Error(t, p.StoreBatch(context.Background(), []*models.StoredPrice{price(2)}))
	assert.Equal(t, 1, p.Buffered())
}

func TestPipelineStopDrainsBuffer(t *testing.T) {
	w := &flakyWriter{fails: 1}
	p := NewSinkPipeline(w, nil, nil)
	require.Error(t, p.StoreBatch(context.Background(), []*models.StoredPrice{price(1)}))

	p.Start(context.Background())
	p.Stop(context.Background())
	assert.Eventually(t, func() bool { return w.stored() == 1 }, time.Second, 5*time.Millisecond)
}
