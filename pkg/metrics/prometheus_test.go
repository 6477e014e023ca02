package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordRPCCall("data", "ok")
	r.RecordRPCCall("data", "ok")
	r.RecordRPCCall("data", "error")
	r.RecordWaveFailure("find")
	r.RecordBudgetExhausted("fetch")
	r.RecordPointsFetched("BTC", 201)
	r.RecordStored("clickhouse", "0xabc", 3)
	r.RecordLastPrice("BTC", 64000.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.rpcCalls.WithLabelValues("data", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rpcCalls.WithLabelValues("data", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.waveFailures.WithLabelValues("find")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.exhausted.WithLabelValues("fetch")))
	assert.Equal(t, 201.0, testutil.ToFloat64(r.points.WithLabelValues("BTC")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.stored.WithLabelValues("clickhouse", "0xabc")))
	assert.Equal(t, 64000.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTC")))
}

func TestNewIsShared(t *testing.T) {
	assert.Same(t, New(), New())
}
