package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	applogger "OraclePull/pkg/logger"
)

// PriceResolver turns a time window into the feed's price points for it.
// It is safe for concurrent use; per-request state lives in the stages it
// builds for each call.
type PriceResolver struct {
	feeds   drepo.FeedResolver
	stores  drepo.RoundStoreFactory
	pool    pond.Pool
	cfg     models.ResolverConfig
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewPriceResolver(
	feeds drepo.FeedResolver,
	stores drepo.RoundStoreFactory,
	pool pond.Pool,
	cfg models.ResolverConfig,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *PriceResolver {
	if l == nil {
		l = applogger.Nop()
	}
	return &PriceResolver{feeds: feeds, stores: stores, pool: pool, cfg: cfg, metrics: metrics, l: l}
}

// Resolve runs against the default network.
func (r *PriceResolver) Resolve(ctx context.Context, before, after int64, asset string) ([]models.PricePoint, error) {
	return r.ResolveOn(ctx, r.feeds.DefaultNetwork(), before, after, asset)
}

// ResolveOn returns the populated rounds of the asset's feed whose rounds
// bracket [after, before], newest first. Only unknown network or asset is
// an error; remote failures degrade to a shorter or empty result.
func (r *PriceResolver) ResolveOn(ctx context.Context, network string, before, after int64, asset string) ([]models.PricePoint, error) {
	feed, err := r.feeds.ResolveFeed(network, asset)
	if err != nil {
		return nil, fmt.Errorf("resolve feed %s/%s: %w", network, asset, err)
	}
	token, err := r.feeds.ResolveToken(network, asset)
	if err != nil {
		return nil, fmt.Errorf("resolve token %s/%s: %w", network, asset, err)
	}

	l := r.l.With(applogger.String("network", network), applogger.String("asset", asset))
	start := time.Now()

	store, err := r.stores.ForFeed(ctx, feed)
	if err != nil {
		l.Warn("feed unavailable", applogger.String("feed", feed.Address), applogger.Error(err))
		r.recordError("resolve_bind")
		return nil, nil
	}

	latest, err := r.latest(ctx, store)
	if err != nil {
		l.Warn("latest round unavailable", applogger.String("feed", feed.Address), applogger.Error(err))
		r.recordError("resolve_latest")
		return nil, nil
	}
	if latest.UpdatedAt < before {
		before = latest.UpdatedAt
	}

	est := NewRoundEstimator(store, r.cfg, r.metrics, l).EstimateStart(ctx, before, latest.RoundID)
	rng := NewRangeFinder(store, r.pool, r.cfg, r.metrics, l).FindRange(ctx, after, before, est)
	points := NewRangeFetcher(store, r.pool, r.cfg, r.metrics, l).FetchRange(ctx, rng, token)

	if r.metrics != nil {
		r.metrics.RecordPointsFetched(asset, len(points))
		r.metrics.RecordLatency("resolve", time.Since(start).Seconds())
	}
	l.Info("resolved price window",
		applogger.Int64("after", after),
		applogger.Int64("before", before),
		applogger.BigInt("latest", latest.RoundID),
		applogger.BigInt("estimate", est),
		applogger.String("range", rng.String()),
		applogger.Int("points", len(points)),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return points, nil
}

func (r *PriceResolver) latest(ctx context.Context, store drepo.RoundStore) (models.RoundPayload, error) {
	callCtx, cancel := withCallTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	start := time.Now()
	p, err := store.Latest(callCtx)
	recordCall(r.metrics, "latest", err, start)
	if err == nil && models.IsRoundNotFound(p.RoundID) {
		err = fmt.Errorf("feed reported no latest round")
	}
	return p, err
}

func (r *PriceResolver) recordError(kind string) {
	if r.metrics != nil {
		r.metrics.RecordError(kind)
	}
}
