package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drepo "OraclePull/internal/domain/repository"
)

func TestBackfillJobRunsWindow(t *testing.T) {
	feed := &windowFeed{}
	sink := &memSink{}
	r, _ := newTestRefresher(feed, sink, refresherConfig())
	job := NewBackfillJob(r, func() int64 { return 100_000 }, nil)
	assert.Equal(t, BackfillJobType, job.Type())

	require.NoError(t, job.Handle(context.Background(), json.RawMessage(`{"asset":" btc ","until":99000}`)))
	assert.Len(t, sink.rows, 101)
	assert.Equal(t, [2]int64{100_000, 99_000}, feed.calls[0])
}

func TestBackfillJobRejectsBadPayloads(t *testing.T) {
	r, _ := newTestRefresher(&windowFeed{}, &memSink{}, refresherConfig())
	job := NewBackfillJob(r, func() int64 { return 100_000 }, nil)
	ctx := context.Background()

	assert.Error(t, job.Handle(ctx, json.RawMessage(`{`)))
	assert.Error(t, job.Handle(ctx, json.RawMessage(`{"asset":""}`)))
	assert.Error(t, job.Handle(ctx, json.RawMessage(`{"asset":"BTC","before":500,"until":600}`)))
	assert.ErrorIs(t, job.Handle(ctx, json.RawMessage(`{"asset":"DOGE"}`)), drepo.ErrUnknownAsset)
}
