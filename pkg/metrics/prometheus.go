package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	rpcCalls     *prometheus.CounterVec
	waveFailures *prometheus.CounterVec
	exhausted    *prometheus.CounterVec
	points       *prometheus.CounterVec
	stored       *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// New returns the process-wide recorder on the default registry.
func New() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		rpcCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraclepull_rpc_calls_total",
			Help: "Feed contract calls by operation and result",
		}, []string{"op", "result"}),
		waveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraclepull_wave_failures_total",
			Help: "Failed call waves by search stage",
		}, []string{"stage"}),
		exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraclepull_failure_budget_exhausted_total",
			Help: "Stages that gave up after consecutive wave failures",
		}, []string{"stage"}),
		points: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraclepull_points_fetched_total",
			Help: "Price points returned by resolves",
		}, []string{"asset"}),
		stored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraclepull_prices_stored_total",
			Help: "Prices handed to a storage backend",
		}, []string{"backend", "token"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraclepull_errors_total",
			Help: "Errors by kind",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oraclepull_last_price",
			Help: "Last stored price per asset",
		}, []string{"symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oraclepull_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordRPCCall(op, result string) {
	r.rpcCalls.WithLabelValues(op, result).Inc()
}

func (r *Recorder) RecordWaveFailure(stage string) {
	r.waveFailures.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordBudgetExhausted(stage string) {
	r.exhausted.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordPointsFetched(asset string, n int) {
	r.points.WithLabelValues(asset).Add(float64(n))
}

func (r *Recorder) RecordStored(backend, token string, n int) {
	r.stored.WithLabelValues(backend, token).Add(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
