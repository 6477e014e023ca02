package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OraclePull/internal/domain/models"
)

func TestFindRangeTightBracket(t *testing.T) {
	store := syntheticStore()
	f := NewRangeFinder(store, newTestPool(t), mainnetConfig(t), nil, nil)

	rng := f.FindRange(context.Background(), 4700, 4900, models.NewRoundID(950))
	require.True(t, rng.Found())
	assert.Equal(t, int64(900), rng.Before.Int64())
	assert.Equal(t, int64(700), rng.After.Int64())

	// the round right above each edge is past the target
	assert.LessOrEqual(t, store.tsAt(rng.Before.Int64()), int64(4900))
	assert.Greater(t, store.tsAt(rng.Before.Int64()+1), int64(4900))
	assert.LessOrEqual(t, store.tsAt(rng.After.Int64()), int64(4700))
	assert.Greater(t, store.tsAt(rng.After.Int64()+1), int64(4700))
}

func TestFindRangeHonoursScanDistance(t *testing.T) {
	store := syntheticStore()
	cfg := mainnetConfig(t)
	cfg.MaxScanDistance = 100
	f := NewRangeFinder(store, newTestPool(t), cfg, nil, nil)

	rng := f.FindRange(context.Background(), 4100, 4200, models.NewRoundID(1000))
	assert.True(t, models.IsRoundNotFound(rng.After))
	assert.True(t, models.IsRoundNotFound(rng.Before))
	assert.Equal(t, 100, store.totalTSCalls())
}

func TestFindRangeKeepsPartialBracket(t *testing.T) {
	store := syntheticStore()
	cfg := mainnetConfig(t)
	cfg.MaxScanDistance = 150
	f := NewRangeFinder(store, newTestPool(t), cfg, nil, nil)

	rng := f.FindRange(context.Background(), 4700, 4900, models.NewRoundID(1000))
	assert.Equal(t, int64(900), rng.Before.Int64())
	assert.True(t, models.IsRoundNotFound(rng.After))
	assert.False(t, rng.Found())
}

func TestFindRangeStopsBelowZero(t *testing.T) {
	store := syntheticStore()
	f := NewRangeFinder(store, newTestPool(t), mainnetConfig(t), nil, nil)

	rng := f.FindRange(context.Background(), 3000, 3500, models.NewRoundID(120))
	assert.False(t, rng.Found())
	assert.Equal(t, 121, store.totalTSCalls())
}

func TestFindRangeGivesUpAfterFailedWaves(t *testing.T) {
	store := syntheticStore()
	store.failAll = true
	m := newCountingMetrics()
	cfg := mainnetConfig(t)
	f := NewRangeFinder(store, newTestPool(t), cfg, m, nil)

	rng := f.FindRange(context.Background(), 4700, 4900, models.NewRoundID(950))
	assert.False(t, rng.Found())
	assert.Equal(t, cfg.MaxFailedWaves*cfg.BatchSize, store.totalTSCalls())
	// every failed wave re-issued the same ids
	assert.Len(t, store.tsCalls, cfg.BatchSize)
	assert.Equal(t, cfg.MaxFailedWaves, m.waveFails["find"])
	assert.Equal(t, 1, m.exhausted["find"])
}

func TestFindRangeCancelled(t *testing.T) {
	store := syntheticStore()
	f := NewRangeFinder(store, newTestPool(t), mainnetConfig(t), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rng := f.FindRange(ctx, 4700, 4900, models.NewRoundID(950))
	assert.False(t, rng.Found())
	assert.Zero(t, store.totalTSCalls())
}
