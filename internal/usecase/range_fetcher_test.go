package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OraclePull/internal/domain/models"
)

func bracket(after, before int64) models.RoundRange {
	return models.RoundRange{After: models.NewRoundID(after), Before: models.NewRoundID(before)}
}

func TestFetchRangeRejectsUnusableRanges(t *testing.T) {
	cases := map[string]models.RoundRange{
		"both missing":   models.EmptyRange(),
		"after missing":  {After: models.RoundNotFound(), Before: models.NewRoundID(900)},
		"before missing": {After: models.NewRoundID(700), Before: models.RoundNotFound()},
		"inverted":       bracket(901, 900),
	}
	for name, rng := range cases {
		t.Run(name, func(t *testing.T) {
			store := syntheticStore()
			f := NewRangeFetcher(store, newTestPool(t), mainnetConfig(t), nil, nil)

			assert.Empty(t, f.FetchRange(context.Background(), rng, "0xtoken"))
			assert.Zero(t, store.totalDataCalls())
		})
	}
}

func TestFetchRangeSingleRound(t *testing.T) {
	store := syntheticStore()
	f := NewRangeFetcher(store, newTestPool(t), mainnetConfig(t), nil, nil)

	points := f.FetchRange(context.Background(), bracket(900, 900), "0xtoken")
	require.Len(t, points, 1)
	assert.Equal(t, int64(900), points[0].RoundID.Int64())
	assert.Equal(t, int64(4900), points[0].Timestamp)
	assert.Equal(t, int64(90000), points[0].Value.Int64())
}

func TestFetchRangeOrderAndBounds(t *testing.T) {
	store := syntheticStore()
	f := NewRangeFetcher(store, newTestPool(t), mainnetConfig(t), nil, nil)

	points := f.FetchRange(context.Background(), bracket(700, 900), "0xtoken")
	require.Len(t, points, 201)
	for i, p := range points {
		assert.Equal(t, int64(900-i), p.RoundID.Int64())
	}
	// the short last wave must not reach below the range
	assert.Zero(t, store.dataCalls[699])
	assert.Equal(t, 201, store.totalDataCalls())
}

func TestFetchRangeFailedWaveIsRetriedWhole(t *testing.T) {
	store := syntheticStore()
	store.failDataOnce[850] = true
	m := newCountingMetrics()
	f := NewRangeFetcher(store, newTestPool(t), mainnetConfig(t), m, nil)

	points := f.FetchRange(context.Background(), bracket(700, 900), "0xtoken")
	require.Len(t, points, 201)
	seen := map[int64]bool{}
	for _, p := range points {
		assert.False(t, seen[p.RoundID.Int64()], "duplicate round %d", p.RoundID.Int64())
		seen[p.RoundID.Int64()] = true
	}
	assert.Equal(t, 1, m.waveFails["fetch"])
	// the wave 850..801 ran twice
	assert.Equal(t, 2, store.dataCalls[850])
	assert.Equal(t, 2, store.dataCalls[849])
	assert.Equal(t, 2, store.dataCalls[801])
	assert.Equal(t, 1, store.dataCalls[851])
	assert.Equal(t, 1, store.dataCalls[800])
}

func TestFetchRangeRetryFailedOnly(t *testing.T) {
	store := syntheticStore()
	store.failDataOnce[850] = true
	cfg := mainnetConfig(t)
	cfg.RetryFailedOnly = true
	f := NewRangeFetcher(store, newTestPool(t), cfg, nil, nil)

	points := f.FetchRange(context.Background(), bracket(700, 900), "0xtoken")
	assert.Equal(t, roundsOf(points), roundsOf(NewRangeFetcher(syntheticStore(), newTestPool(t), mainnetConfig(t), nil, nil).
		FetchRange(context.Background(), bracket(700, 900), "0xtoken")))
	assert.Equal(t, 2, store.dataCalls[850])
	assert.Equal(t, 1, store.dataCalls[849])
	assert.Equal(t, 1, store.dataCalls[801])
}

func TestFetchRangeReturnsPartialOnExhaustion(t *testing.T) {
	store := syntheticStore()
	cfg := mainnetConfig(t)
	f := NewRangeFetcher(&flakyBelow{fakeStore: store, below: 800}, newTestPool(t), cfg, nil, nil)

	points := f.FetchRange(context.Background(), bracket(700, 900), "0xtoken")
	// 900..801 came back in two good waves; 800..751 never succeeds
	require.Len(t, points, 100)
	assert.Equal(t, int64(801), points[len(points)-1].RoundID.Int64())
	assert.Equal(t, cfg.MaxFailedWaves, store.dataCalls[800])
	assert.Zero(t, store.dataCalls[750])
}

func TestFetchRangeDropsUnpopulated(t *testing.T) {
	store := newFakeStore(1000, func(k int64) int64 {
		if k%2 == 0 {
			return 0
		}
		return 4000 + k
	})
	f := NewRangeFetcher(store, newTestPool(t), mainnetConfig(t), nil, nil)

	points := f.FetchRange(context.Background(), bracket(700, 900), "0xtoken")
	assert.Len(t, points, 100)
	// unpopulated rounds are still asked for
	assert.Equal(t, 201, store.totalDataCalls())
}

// flakyBelow fails DataOf for every round at or below a threshold.
type flakyBelow struct {
	*fakeStore
	below int64
}

func (s *flakyBelow) DataOf(ctx context.Context, r models.RoundID) (models.RoundPayload, error) {
	p, err := s.fakeStore.DataOf(ctx, r)
	if r.Int64() <= s.below {
		return models.RoundPayload{}, errRPC
	}
	return p, err
}
