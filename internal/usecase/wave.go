package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
)

// waveMemo keeps results of calls that succeeded inside a failed wave so a
// retry only re-issues the failed ids. Keyed by round id.
type waveMemo[T any] map[string]T

// runWave issues one call per id on the pool and waits for all of them.
// results[i] belongs to ids[i] regardless of completion order. A non-nil
// error means at least one call failed and the wave must be discarded.
func runWave[T any](
	ctx context.Context,
	pool pond.Pool,
	timeout time.Duration,
	ids []models.RoundID,
	memo waveMemo[T],
	call func(context.Context, models.RoundID) (T, error),
) ([]T, error) {
	results := make([]T, len(ids))
	errs := make([]error, len(ids))
	issued := make([]bool, len(ids))

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, id := range ids {
		if memo != nil {
			if v, ok := memo[id.String()]; ok {
				results[i] = v
				continue
			}
		}
		issued[i] = true
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				errs[i] = err
				return
			}
			callCtx, cancel := withCallTimeout(groupCtx, timeout)
			defer cancel()
			results[i], errs[i] = call(callCtx, id)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, fmt.Errorf("wave: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Errorf("round %s: %w", ids[i], err))
			continue
		}
		if memo != nil && issued[i] {
			memo[ids[i].String()] = results[i]
		}
	}
	if len(failed) > 0 {
		return nil, errors.Join(failed...)
	}
	if memo != nil {
		clear(memo)
	}
	return results, nil
}

func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// descendingIDs returns up to n ids counting down from top, stopping at
// floor (inclusive) and never going below zero.
func descendingIDs(top models.RoundID, n int, floor models.RoundID) []models.RoundID {
	ids := make([]models.RoundID, 0, n)
	cur := models.CloneRound(top)
	for len(ids) < n && cur.Sign() >= 0 && (floor == nil || cur.Cmp(floor) >= 0) {
		ids = append(ids, models.CloneRound(cur))
		cur = models.ShiftRound(cur, -1)
	}
	return ids
}

// waveBudget tracks consecutive wave failures for one stage.
type waveBudget struct {
	stage   string
	max     int
	failed  int
	metrics drepo.Metrics
}

func (b *waveBudget) fail() {
	b.failed++
	if b.metrics != nil {
		b.metrics.RecordWaveFailure(b.stage)
	}
}

func (b *waveBudget) ok() { b.failed = 0 }

func (b *waveBudget) exhausted() bool { return b.failed >= b.max }

// done records a give-up when the stage stopped on its failure budget.
func (b *waveBudget) done() bool {
	if !b.exhausted() {
		return false
	}
	if b.metrics != nil {
		b.metrics.RecordBudgetExhausted(b.stage)
	}
	return true
}
