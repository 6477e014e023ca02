package usecase

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	applogger "OraclePull/pkg/logger"
)

// RangeFetcher retrieves round payloads for a resolved range, newest first.
type RangeFetcher struct {
	store   drepo.RoundStore
	pool    pond.Pool
	cfg     models.ResolverConfig
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewRangeFetcher(store drepo.RoundStore, pool pond.Pool, cfg models.ResolverConfig, metrics drepo.Metrics, l *applogger.Logger) *RangeFetcher {
	if l == nil {
		l = applogger.Nop()
	}
	return &RangeFetcher{store: store, pool: pool, cfg: cfg, metrics: metrics, l: l}
}

// FetchRange walks rng from Before down to After inclusive. An unresolved or
// inverted range yields nil without any call. When the failure budget runs
// out, the points gathered so far are returned.
func (f *RangeFetcher) FetchRange(ctx context.Context, rng models.RoundRange, token string) []models.PricePoint {
	if !rng.Valid() {
		return nil
	}

	var memo waveMemo[models.RoundPayload]
	if f.cfg.RetryFailedOnly {
		memo = waveMemo[models.RoundPayload]{}
	}
	budget := waveBudget{stage: "fetch", max: f.cfg.MaxFailedWaves, metrics: f.metrics}
	var points []models.PricePoint
	if span := models.RoundDistance(rng.Before, rng.After); span.IsInt64() && span.Int64() < 1<<16 {
		points = make([]models.PricePoint, 0, span.Int64()+1)
	}
	cursor := models.CloneRound(rng.Before)

	for cursor.Cmp(rng.After) >= 0 && !budget.exhausted() && ctx.Err() == nil {
		ids := descendingIDs(cursor, f.cfg.BatchSize, rng.After)
		if len(ids) == 0 {
			break
		}

		payloads, err := runWave(ctx, f.pool, f.cfg.CallTimeout, ids, memo, f.dataOf)
		if err != nil {
			// rewind to this wave's top: retry exactly the ids just issued
			budget.fail()
			f.l.Debug("fetch wave failed", applogger.BigInt("top", cursor), applogger.Error(err))
			continue
		}
		budget.ok()

		for i, p := range payloads {
			if !p.Populated() {
				continue
			}
			points = append(points, models.PricePoint{
				RoundID:   ids[i],
				Value:     p.Value,
				Timestamp: p.UpdatedAt,
				Token:     token,
			})
		}
		cursor = models.ShiftRound(cursor, -int64(len(ids)))
	}

	if budget.done() {
		f.l.Warn("fetch gave up after consecutive wave failures, returning partial range",
			applogger.String("range", rng.String()),
			applogger.BigInt("cursor", cursor),
			applogger.Int("points", len(points)))
	}
	return points
}

func (f *RangeFetcher) dataOf(ctx context.Context, round models.RoundID) (models.RoundPayload, error) {
	start := time.Now()
	p, err := f.store.DataOf(ctx, round)
	recordCall(f.metrics, "data", err, start)
	return p, err
}
