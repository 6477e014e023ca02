package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"OraclePull/internal/domain/models"
	domrepo "OraclePull/internal/domain/repository"
	applogger "OraclePull/pkg/logger"
)

var ErrPipelineStopped = errors.New("sink pipeline stopped")

// Writer is the downstream the pipeline protects.
type Writer interface {
	StoreBatch(ctx context.Context, prices []*models.StoredPrice) error
}

// SinkPipeline sits between producers of prices and the storage backend.
// It drops malformed rows, collapses duplicates within a batch and keeps
// failed batches in a bounded buffer that a background loop retries.
type SinkPipeline struct {
	next    Writer
	metrics domrepo.Metrics
	l       *applogger.Logger

	bufSize    int
	minBackoff time.Duration
	maxBackoff time.Duration
	bufCh      chan []*models.StoredPrice

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type PipelineOption func(*SinkPipeline)

// WithBufferSize sets how many failed batches are kept for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *SinkPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *SinkPipeline) {
		if min > 0 {
			p.minBackoff = min
		}
		if max >= p.minBackoff {
			p.maxBackoff = max
		}
	}
}

func NewSinkPipeline(next Writer, metrics domrepo.Metrics, l *applogger.Logger, opts ...PipelineOption) *SinkPipeline {
	p := &SinkPipeline{
		next:       next,
		metrics:    metrics,
		l:          l,
		bufSize:    64,
		minBackoff: 50 * time.Millisecond,
		maxBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.l == nil {
		p.l = applogger.Nop()
	}
	p.bufCh = make(chan []*models.StoredPrice, p.bufSize)
	return p
}

// Start launches the retry loop for buffered batches.
func (p *SinkPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.flushLoop(ctx, p.stopCh)
}

// Stop ends the retry loop and makes one last attempt at whatever is
// still buffered.
func (p *SinkPipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()

	for {
		select {
		case batch := <-p.bufCh:
			if err := p.next.StoreBatch(ctx, batch); err != nil {
				p.record("pipeline_drop_on_stop")
				p.l.Warn("dropping buffered prices on shutdown", applogger.Int("rows", len(batch)), applogger.Error(err))
			}
		default:
			return
		}
	}
}

// Buffered reports batches waiting for retry.
func (p *SinkPipeline) Buffered() int { return len(p.bufCh) }

// StoreBatch validates and forwards prices. When the downstream fails the
// batch is buffered for retry and the error is still returned.
func (p *SinkPipeline) StoreBatch(ctx context.Context, prices []*models.StoredPrice) error {
	start := time.Now()
	batch := p.clean(prices)
	if len(batch) == 0 {
		return nil
	}

	if err := p.next.StoreBatch(ctx, batch); err != nil {
		p.record("pipeline_downstream")
		select {
		case p.bufCh <- batch:
			p.latency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.record("pipeline_buffer_full")
			p.l.Warn("sink buffer full, dropping batch", applogger.Int("rows", len(batch)))
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.latency("pipeline_store", time.Since(start).Seconds())
	return nil
}

func (p *SinkPipeline) clean(prices []*models.StoredPrice) []*models.StoredPrice {
	type key struct {
		chain uint32
		token string
		ts    int64
	}
	seen := make(map[key]struct{}, len(prices))
	out := make([]*models.StoredPrice, 0, len(prices))
	for _, sp := range prices {
		if err := validatePrice(sp); err != nil {
			p.record("pipeline_validate")
			continue
		}
		k := key{sp.ChainID, sp.Token, sp.Timestamp}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, sp)
	}
	return out
}

func (p *SinkPipeline) flushLoop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()
	backoff := p.minBackoff
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case batch := <-p.bufCh:
			err := p.next.StoreBatch(ctx, batch)
			if err == nil {
				backoff = p.minBackoff
				continue
			}
			p.record("pipeline_flush")
			select {
			case p.bufCh <- batch:
			default:
				p.record("pipeline_buffer_drop")
				p.l.Warn("sink retry buffer full, dropping batch", applogger.Int("rows", len(batch)), applogger.Error(err))
			}
			t := time.NewTimer(backoff)
			select {
			case <-stop:
				t.Stop()
				return
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			if backoff *= 2; backoff > p.maxBackoff {
				backoff = p.maxBackoff
			}
		}
	}
}

func validatePrice(sp *models.StoredPrice) error {
	switch {
	case sp == nil:
		return fmt.Errorf("price nil")
	case sp.Token == "":
		return fmt.Errorf("token empty")
	case sp.Timestamp <= 0:
		return fmt.Errorf("timestamp invalid")
	case sp.Value < 0 || math.IsNaN(sp.Value) || math.IsInf(sp.Value, 0):
		return fmt.Errorf("value invalid")
	}
	return nil
}

func (p *SinkPipeline) record(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func (p *SinkPipeline) latency(op string, v float64) {
	if p.metrics != nil {
		p.metrics.RecordLatency(op, v)
	}
}
