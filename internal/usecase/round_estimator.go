package usecase

import (
	"context"
	"time"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	applogger "OraclePull/pkg/logger"
)

// RoundEstimator samples a feed in large strides to find a round at or
// just above the one whose timestamp crosses a target.
type RoundEstimator struct {
	store   drepo.RoundStore
	cfg     models.ResolverConfig
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewRoundEstimator(store drepo.RoundStore, cfg models.ResolverConfig, metrics drepo.Metrics, l *applogger.Logger) *RoundEstimator {
	if l == nil {
		l = applogger.Nop()
	}
	return &RoundEstimator{store: store, cfg: cfg, metrics: metrics, l: l}
}

// EstimateStart walks back from latest one stride at a time. When a
// populated sample with timestamp <= before is reached, it returns the
// lowest sample confirmed newer than before (latest if none was). Skipped
// unpopulated or failed samples never become the estimate. A run of
// unpopulated samples spanning MaxScanDistance stops the walk early with
// the same result. Falls back to latest when no crossing is sampled.
func (e *RoundEstimator) EstimateStart(ctx context.Context, before int64, latest models.RoundID) models.RoundID {
	if models.IsRoundNotFound(latest) || latest.Sign() < 0 {
		return models.RoundNotFound()
	}

	stride := e.cfg.StrideStep
	// an unpopulated gap wider than the scan distance cannot be bridged later
	maxGap := e.cfg.MaxScanDistance / stride
	if maxGap < 1 {
		maxGap = 1
	}

	budget := waveBudget{stage: "estimate", max: e.cfg.MaxFailedWaves, metrics: e.metrics}
	var (
		cur        = models.CloneRound(latest)
		lowestSeen = models.CloneRound(latest)
		gap        int64
		samples    int
	)
	for !budget.exhausted() && cur.Sign() >= 0 && ctx.Err() == nil {
		sample := cur
		cur = models.ShiftRound(cur, -stride)
		samples++

		ts, err := e.timestampOf(ctx, sample)
		if err != nil {
			budget.fail()
			e.l.Debug("estimate sample failed", applogger.BigInt("round", sample), applogger.Error(err))
			continue
		}
		budget.ok()

		if ts == 0 {
			gap++
			if gap >= maxGap {
				e.l.Warn("estimate crossed an unpopulated gap, stopping",
					applogger.BigInt("round", sample), applogger.Int64("gap_samples", gap))
				return models.CloneRound(lowestSeen)
			}
			continue
		}
		gap = 0
		if ts <= before {
			e.l.Debug("estimate found crossing",
				applogger.BigInt("round", sample), applogger.BigInt("estimate", lowestSeen), applogger.Int("samples", samples))
			return models.CloneRound(lowestSeen)
		}
		lowestSeen = sample
	}

	if budget.done() {
		e.l.Warn("estimate gave up after consecutive failures, using latest round",
			applogger.Int("failures", budget.failed), applogger.BigInt("latest", latest))
	}
	return models.CloneRound(latest)
}

func (e *RoundEstimator) timestampOf(ctx context.Context, round models.RoundID) (int64, error) {
	callCtx, cancel := withCallTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	start := time.Now()
	ts, err := e.store.TimestampOf(callCtx, round)
	recordCall(e.metrics, "timestamp", err, start)
	return ts, err
}

func recordCall(m drepo.Metrics, op string, err error, start time.Time) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RecordRPCCall(op, result)
	m.RecordLatency("rpc_"+op, time.Since(start).Seconds())
}
