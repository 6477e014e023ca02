package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	applogger "OraclePull/pkg/logger"
	"OraclePull/pkg/util"
)

// WindowResolver is the part of PriceResolver the refresher drives.
type WindowResolver interface {
	ResolveOn(ctx context.Context, network string, before, after int64, asset string) ([]models.PricePoint, error)
}

// Locker guards a refresh against concurrent replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// PriceBroadcaster receives freshly stored points.
type PriceBroadcaster interface {
	Broadcast(asset string, points []models.PricePoint)
}

type RefresherConfig struct {
	Network       string
	Assets        []string
	Schedule      string
	Lookback      time.Duration
	InitialLag    time.Duration
	Backfill      bool
	BackfillStep  time.Duration
	MaxIterations int
	FailurePause  time.Duration
	MaxFailures   int
	BaseRetry     time.Duration
	LockTTL       time.Duration
}

// RefreshState is the per-asset progress of the refresher.
type RefreshState struct {
	Asset        string    `json:"asset"`
	Network      string    `json:"network"`
	Newest       int64     `json:"newest"`
	Oldest       int64     `json:"oldest"`
	BackfillDone bool      `json:"backfillDone"`
	Stored       int       `json:"stored"`
	LastRun      time.Time `json:"lastRun"`
	LastError    string    `json:"lastError,omitempty"`
}

// PriceRefresher keeps storage current for a set of assets: a one-off
// backfill walking back in time, and a scheduled refresh of recent rounds.
type PriceRefresher struct {
	resolver WindowResolver
	feeds    drepo.FeedResolver
	sink     PriceWriter
	lock     Locker
	hub      PriceBroadcaster
	metrics  drepo.Metrics
	cfg      RefresherConfig
	l        *applogger.Logger

	states *xsync.Map[string, RefreshState]
	cron   *cron.Cron
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type RefresherOption func(*PriceRefresher)

func WithLocker(lock Locker) RefresherOption {
	return func(r *PriceRefresher) { r.lock = lock }
}

func WithBroadcaster(hub PriceBroadcaster) RefresherOption {
	return func(r *PriceRefresher) { r.hub = hub }
}

func NewPriceRefresher(
	resolver WindowResolver,
	feeds drepo.FeedResolver,
	sink PriceWriter,
	metrics drepo.Metrics,
	cfg RefresherConfig,
	l *applogger.Logger,
	opts ...RefresherOption,
) *PriceRefresher {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.Network == "" {
		cfg.Network = feeds.DefaultNetwork()
	}
	if cfg.BackfillStep <= 0 {
		cfg.BackfillStep = 24 * time.Hour
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	r := &PriceRefresher{
		resolver: resolver,
		feeds:    feeds,
		sink:     sink,
		metrics:  metrics,
		cfg:      cfg,
		l:        l.With(applogger.String("component", "refresher"), applogger.String("network", cfg.Network)),
		states:   xsync.NewMap[string, RefreshState](),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{r.l}),
		cron.SkipIfStillRunning(cronLogger{r.l}),
	))
	return r
}

// Start validates the assets, schedules the periodic refresh, runs one
// refresh right away and launches the backfill in the background.
func (r *PriceRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("refresher already started")
	}
	for _, asset := range r.cfg.Assets {
		if _, err := r.feeds.ResolveFeed(r.cfg.Network, asset); err != nil {
			return fmt.Errorf("refresh asset %s: %w", asset, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	for _, asset := range r.cfg.Assets {
		if _, err := r.cron.AddFunc(r.cfg.Schedule, func() { _, _ = r.RefreshOnce(ctx, asset) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %q: %w", r.cfg.Schedule, err)
		}
	}
	r.cancel = cancel
	r.cron.Start()

	now := r.now().Unix()
	for _, asset := range r.cfg.Assets {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			_, _ = r.RefreshOnce(ctx, asset)
			if !r.cfg.Backfill {
				return
			}
			if _, err := r.Backfill(ctx, asset, now, 0); err != nil {
				r.l.Warn("backfill stopped", applogger.String("asset", asset), applogger.Error(err))
			}
		}()
	}
	r.l.Info("price refresher started",
		applogger.Strings("assets", r.cfg.Assets),
		applogger.String("schedule", r.cfg.Schedule),
		applogger.Bool("backfill", r.cfg.Backfill))
	return nil
}

func (r *PriceRefresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	cronDone := r.cron.Stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		<-cronDone.Done()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for refresher: %w", ctx.Err())
	}
}

// RefreshOnce loads rounds since the last stored price minus the lookback
// and stores them. It returns how many prices were stored.
func (r *PriceRefresher) RefreshOnce(ctx context.Context, asset string) (int, error) {
	release, ok := r.acquire(ctx, "refresh:"+r.cfg.Network+":"+asset)
	if !ok {
		return 0, nil
	}
	defer release()

	st := r.state(asset)
	now := r.now().Unix()
	if st.Newest == 0 {
		// late blocks may carry timestamps slightly in the past
		st.Newest = now - int64(r.cfg.InitialLag.Seconds())
	}
	after := st.Newest - int64(r.cfg.Lookback.Seconds())

	start := time.Now()
	points, err := r.resolver.ResolveOn(ctx, r.cfg.Network, now, after, asset)
	if err == nil && len(points) > 0 {
		err = r.store(ctx, asset, points)
	}
	r.update(asset, func(s *RefreshState) {
		s.LastRun = r.now()
		if s.Newest == 0 {
			s.Newest = st.Newest
		}
		if err != nil {
			s.LastError = err.Error()
			return
		}
		s.LastError = ""
		if len(points) > 0 {
			s.Newest = points[0].Timestamp
			s.Stored += len(points)
		}
	})
	if err != nil {
		r.recordError("refresh")
		r.l.Warn("refresh failed", applogger.String("asset", asset), applogger.Error(err))
		return 0, err
	}

	if r.metrics != nil {
		r.metrics.RecordLatency("refresh", time.Since(start).Seconds())
	}
	if len(points) > 0 {
		r.l.Info("refreshed prices",
			applogger.String("asset", asset),
			applogger.Int("points", len(points)),
			applogger.String("since", util.ReadableUTC(after)))
		if r.hub != nil {
			r.hub.Broadcast(asset, points)
		}
	}
	return len(points), nil
}

// Backfill walks back from before, one step-sized window at a time, until
// a window comes back empty, the iteration cap is hit, or the cursor
// passes until (0 means no lower bound). Storage failures are retried
// after a pause; after MaxFailures in a row the pause grows exponentially
// from BaseRetry.
func (r *PriceRefresher) Backfill(ctx context.Context, asset string, before, until int64) (int, error) {
	if _, err := r.feeds.ResolveFeed(r.cfg.Network, asset); err != nil {
		return 0, fmt.Errorf("backfill %s: %w", asset, err)
	}
	l := r.l.With(applogger.String("asset", asset))
	l.Info("backfill started", applogger.String("before", util.ReadableUTC(before)))

	step := int64(r.cfg.BackfillStep.Seconds())
	oldest := before
	total, failures := 0, 0
	retry := r.cfg.BaseRetry
	reachedEnd := false

	for i := 0; i < r.cfg.MaxIterations && ctx.Err() == nil; i++ {
		after := oldest - step
		if until > 0 && after < until {
			after = until
		}
		points, err := r.resolver.ResolveOn(ctx, r.cfg.Network, oldest, after, asset)
		if err != nil {
			return total, err
		}
		if len(points) == 0 {
			reachedEnd = true
			l.Info("all old prices loaded", applogger.String("oldest", util.ReadableUTC(oldest)))
			break
		}

		if err := r.store(ctx, asset, points); err != nil {
			failures++
			r.recordError("backfill_store")
			l.Warn("backfill window failed", applogger.Int("failures", failures), applogger.Error(err))
			if failures > r.cfg.MaxFailures {
				l.Warn("too many backfill failures, backing off", applogger.Duration("retry_ms", retry))
				if !r.sleep(ctx, retry) {
					break
				}
				retry *= 2
			}
			if !r.sleep(ctx, r.cfg.FailurePause) {
				break
			}
			continue
		}
		failures, retry = 0, r.cfg.BaseRetry
		total += len(points)
		oldest = points[len(points)-1].Timestamp - 1
		r.update(asset, func(s *RefreshState) {
			s.Oldest = oldest
			s.Stored += len(points)
		})
		if until > 0 && oldest < until {
			reachedEnd = true
			break
		}
	}

	r.update(asset, func(s *RefreshState) { s.BackfillDone = reachedEnd })
	l.Info("backfill done", applogger.Int("stored", total), applogger.String("oldest", util.ReadableUTC(oldest)))
	return total, ctx.Err()
}

// States returns a snapshot of every asset's progress, sorted by asset.
func (r *PriceRefresher) States() []RefreshState {
	out := make([]RefreshState, 0, r.states.Size())
	r.states.Range(func(_ string, s RefreshState) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (r *PriceRefresher) store(ctx context.Context, asset string, points []models.PricePoint) error {
	feed, err := r.feeds.ResolveFeed(r.cfg.Network, asset)
	if err != nil {
		return err
	}
	prices := ToStoredPrices(feed, points)
	if err := r.sink.StoreBatch(ctx, prices); err != nil {
		return err
	}
	if r.metrics != nil && len(prices) > 0 {
		r.metrics.RecordLastPrice(asset, prices[0].Value)
	}
	return nil
}

func (r *PriceRefresher) state(asset string) RefreshState {
	s, _ := r.states.Load(asset)
	return s
}

func (r *PriceRefresher) update(asset string, fn func(*RefreshState)) {
	r.states.Compute(asset, func(old RefreshState, _ bool) (RefreshState, xsync.ComputeOp) {
		old.Asset, old.Network = asset, r.cfg.Network
		fn(&old)
		return old, xsync.UpdateOp
	})
}

func (r *PriceRefresher) acquire(ctx context.Context, key string) (func(), bool) {
	if r.lock == nil {
		return func() {}, true
	}
	ok, err := r.lock.TryLock(ctx, key, r.cfg.LockTTL)
	if err != nil {
		// a broken lock backend should not stop refreshes
		r.l.Warn("refresh lock unavailable", applogger.String("key", key), applogger.Error(err))
		return func() {}, true
	}
	if !ok {
		r.l.Debug("refresh held by another replica", applogger.String("key", key))
		return nil, false
	}
	return func() {
		if err := r.lock.Unlock(context.WithoutCancel(ctx), key); err != nil {
			r.l.Warn("refresh unlock failed", applogger.String("key", key), applogger.Error(err))
		}
	}, true
}

func (r *PriceRefresher) recordError(kind string) {
	if r.metrics != nil {
		r.metrics.RecordError(kind)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct{ l *applogger.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(kv), applogger.Error(err))...)
}

func kvFields(kv []interface{}) []applogger.Field {
	out := make([]applogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, applogger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
