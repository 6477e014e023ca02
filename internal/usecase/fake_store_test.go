package usecase

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
)

var errRPC = errors.New("rpc unavailable")

// fakeStore is an in-memory feed: rounds 0..head with ts(k) from clock.
type fakeStore struct {
	head  int64
	clock func(k int64) int64

	mu           sync.Mutex
	failAll      bool
	failLatest   bool
	failDataOnce map[int64]bool
	failTS       map[int64]bool
	tsCalls      map[int64]int
	dataCalls    map[int64]int
	latestCalls  int
}

// syntheticStore: latest round 1000 at ts 5000, one second per round.
func syntheticStore() *fakeStore {
	return newFakeStore(1000, func(k int64) int64 { return 4000 + k })
}

func newFakeStore(head int64, clock func(int64) int64) *fakeStore {
	return &fakeStore{
		head:         head,
		clock:        clock,
		failDataOnce: map[int64]bool{},
		failTS:       map[int64]bool{},
		tsCalls:      map[int64]int{},
		dataCalls:    map[int64]int{},
	}
}

func (s *fakeStore) tsAt(k int64) int64 {
	if k < 0 || k > s.head {
		return 0
	}
	return s.clock(k)
}

func (s *fakeStore) Latest(context.Context) (models.RoundPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestCalls++
	if s.failAll || s.failLatest {
		return models.RoundPayload{}, errRPC
	}
	return models.RoundPayload{RoundID: models.NewRoundID(s.head), Value: big.NewInt(s.head * 100), UpdatedAt: s.tsAt(s.head)}, nil
}

func (s *fakeStore) TimestampOf(_ context.Context, r models.RoundID) (int64, error) {
	k := r.Int64()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tsCalls[k]++
	if s.failAll || s.failTS[k] {
		return 0, errRPC
	}
	return s.tsAt(k), nil
}

func (s *fakeStore) DataOf(_ context.Context, r models.RoundID) (models.RoundPayload, error) {
	k := r.Int64()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataCalls[k]++
	if s.failAll {
		return models.RoundPayload{}, errRPC
	}
	if s.failDataOnce[k] {
		delete(s.failDataOnce, k)
		return models.RoundPayload{}, errRPC
	}
	return models.RoundPayload{RoundID: models.NewRoundID(k), Value: big.NewInt(k * 100), UpdatedAt: s.tsAt(k)}, nil
}

func (s *fakeStore) totalTSCalls() int   { return sum(s.tsCalls) }
func (s *fakeStore) totalDataCalls() int { return sum(s.dataCalls) }

func sum(m map[int64]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

type fakeFactory struct{ store drepo.RoundStore }

func (f fakeFactory) ForFeed(context.Context, models.Feed) (drepo.RoundStore, error) {
	return f.store, nil
}

type fakeFeeds struct{}

func (fakeFeeds) ResolveFeed(network, asset string) (models.Feed, error) {
	if network != "BSC" {
		return models.Feed{}, drepo.ErrUnknownNetwork
	}
	if asset != "BTC" {
		return models.Feed{}, drepo.ErrUnknownAsset
	}
	return models.Feed{Network: network, ChainID: 56, Asset: asset, Address: "0xfeed", Token: "0xtoken", Decimals: 8}, nil
}

func (f fakeFeeds) ResolveToken(network, asset string) (string, error) {
	feed, err := f.ResolveFeed(network, asset)
	return feed.Token, err
}

func (fakeFeeds) Assets(network string) ([]string, error) {
	if network != "BSC" {
		return nil, drepo.ErrUnknownNetwork
	}
	return []string{"BTC"}, nil
}

func (fakeFeeds) ChainID(network string) (uint32, error) {
	if network != "BSC" {
		return 0, drepo.ErrUnknownNetwork
	}
	return 56, nil
}

func (fakeFeeds) NetworkForChain(uint32) string { return "BSC" }
func (fakeFeeds) DefaultNetwork() string        { return "BSC" }

// countingMetrics records the stage-level counters the search stages emit.
type countingMetrics struct {
	mu          sync.Mutex
	waveFails   map[string]int
	exhausted   map[string]int
	rpc         map[string]int
	points      int
	stored      int
	errorsTotal map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{waveFails: map[string]int{}, exhausted: map[string]int{}, rpc: map[string]int{}, errorsTotal: map[string]int{}}
}

func (m *countingMetrics) RecordRPCCall(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rpc[op+"/"+result]++
}

func (m *countingMetrics) RecordWaveFailure(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waveFails[stage]++
}

func (m *countingMetrics) RecordBudgetExhausted(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted[stage]++
}

func (m *countingMetrics) RecordPointsFetched(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points += n
}

func (m *countingMetrics) RecordStored(_, _ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored += n
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorsTotal[kind]++
}

func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64)   {}

var _ drepo.Metrics = (*countingMetrics)(nil)
