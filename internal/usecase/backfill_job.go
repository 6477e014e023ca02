package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	applogger "OraclePull/pkg/logger"
	"OraclePull/pkg/queue"
)

const BackfillJobType = "price.backfill"

// BackfillPayload asks for an asset's history between Until and Before.
// Zero Before means now; zero Until means walk back until the feed runs out.
type BackfillPayload struct {
	Asset  string `json:"asset" validate:"required"`
	Before int64  `json:"before,omitempty"`
	Until  int64  `json:"until,omitempty"`
}

type Backfiller interface {
	Backfill(ctx context.Context, asset string, before, until int64) (int, error)
}

// BackfillJob runs queued backfill requests.
type BackfillJob struct {
	refresher Backfiller
	now       func() int64
	l         *applogger.Logger
}

func NewBackfillJob(refresher Backfiller, now func() int64, l *applogger.Logger) *BackfillJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &BackfillJob{refresher: refresher, now: now, l: l}
}

func (j *BackfillJob) Name() string { return "backfill" }
func (j *BackfillJob) Type() string { return BackfillJobType }

func (j *BackfillJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[BackfillPayload](payload)
	if err != nil {
		return err
	}
	asset := strings.ToUpper(strings.TrimSpace(p.Asset))
	if asset == "" {
		return fmt.Errorf("backfill payload without asset")
	}
	before := p.Before
	if before <= 0 {
		before = j.now()
	}
	if p.Until > 0 && p.Until >= before {
		return fmt.Errorf("backfill window is empty: until %d >= before %d", p.Until, before)
	}

	n, err := j.refresher.Backfill(ctx, asset, before, p.Until)
	if err != nil {
		return fmt.Errorf("backfill %s: %w", asset, err)
	}
	j.l.Info("backfill job done", applogger.String("asset", asset), applogger.Int("stored", n))
	return nil
}

var _ queue.Job = (*BackfillJob)(nil)
