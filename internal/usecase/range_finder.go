package usecase

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	applogger "OraclePull/pkg/logger"
)

// RangeFinder scans backward from a start round in concurrent waves to find
// the tightest rounds at or below each edge of a time window.
type RangeFinder struct {
	store   drepo.RoundStore
	pool    pond.Pool
	cfg     models.ResolverConfig
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewRangeFinder(store drepo.RoundStore, pool pond.Pool, cfg models.ResolverConfig, metrics drepo.Metrics, l *applogger.Logger) *RangeFinder {
	if l == nil {
		l = applogger.Nop()
	}
	return &RangeFinder{store: store, pool: pool, cfg: cfg, metrics: metrics, l: l}
}

// FindRange returns the bracket [after, before] for the window. Edges that
// could not be located within the failure and distance caps stay -1.
func (f *RangeFinder) FindRange(ctx context.Context, after, before int64, start models.RoundID) models.RoundRange {
	rng := models.EmptyRange()
	if models.IsRoundNotFound(start) || start.Sign() < 0 {
		return rng
	}

	var memo waveMemo[int64]
	if f.cfg.RetryFailedOnly {
		memo = waveMemo[int64]{}
	}
	budget := waveBudget{stage: "find", max: f.cfg.MaxFailedWaves, metrics: f.metrics}
	maxDistance := models.NewRoundID(f.cfg.MaxScanDistance)
	cursor := models.CloneRound(start)
	waves := 0

	for !rng.Found() && !budget.exhausted() && ctx.Err() == nil {
		if models.RoundDistance(start, cursor).Cmp(maxDistance) >= 0 {
			f.l.Debug("range scan hit distance cap",
				applogger.BigInt("start", start), applogger.BigInt("cursor", cursor))
			break
		}
		ids := descendingIDs(cursor, f.cfg.BatchSize, nil)
		if len(ids) == 0 {
			break
		}

		waves++
		tss, err := runWave(ctx, f.pool, f.cfg.CallTimeout, ids, memo, f.timestampOf)
		if err != nil {
			// nothing from a failed wave is used; the same ids are retried
			budget.fail()
			f.l.Debug("range wave failed", applogger.BigInt("top", cursor), applogger.Error(err))
			continue
		}
		budget.ok()

		for i, ts := range tss {
			if ts == 0 {
				continue
			}
			if models.IsRoundNotFound(rng.Before) && ts <= before {
				rng.Before = ids[i]
			}
			if models.IsRoundNotFound(rng.After) && ts <= after {
				rng.After = ids[i]
			}
		}
		cursor = models.ShiftRound(cursor, -int64(len(ids)))
	}

	if budget.done() {
		f.l.Warn("range scan gave up after consecutive wave failures",
			applogger.Int("failures", budget.failed), applogger.BigInt("cursor", cursor))
	}
	f.l.Debug("range scan finished",
		applogger.String("range", rng.String()), applogger.Int("waves", waves))
	return rng
}

func (f *RangeFinder) timestampOf(ctx context.Context, round models.RoundID) (int64, error) {
	start := time.Now()
	ts, err := f.store.TimestampOf(ctx, round)
	recordCall(f.metrics, "timestamp", err, start)
	return ts, err
}
