package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	"OraclePull/internal/service/ratelimit"
	"OraclePull/internal/usecase"
	xhttp "OraclePull/pkg/http"
)

type stubFeeds struct{}

func (stubFeeds) ResolveFeed(network, asset string) (models.Feed, error) {
	if network != "BSC" {
		return models.Feed{}, drepo.ErrUnknownNetwork
	}
	if asset != "BTC" {
		return models.Feed{}, drepo.ErrUnknownAsset
	}
	return models.Feed{Network: "BSC", ChainID: 56, Asset: "BTC", Token: "0xToken", Decimals: 8}, nil
}
func (f stubFeeds) ResolveToken(network, asset string) (string, error) {
	feed, err := f.ResolveFeed(network, asset)
	return feed.Token, err
}
func (stubFeeds) Assets(string) ([]string, error) { return []string{"BTC"}, nil }
func (stubFeeds) ChainID(string) (uint32, error)  { return 56, nil }
func (stubFeeds) NetworkForChain(uint32) string   { return "BSC" }
func (stubFeeds) DefaultNetwork() string          { return "BSC" }

type stubCandles struct {
	got  usecase.GetCandlesParams
	resp *models.CandlesResponse
	err  error
}

func (s *stubCandles) GetCandles(_ context.Context, p usecase.GetCandlesParams) (*models.CandlesResponse, error) {
	s.got = p
	return s.resp, s.err
}

type stubResolver struct {
	calls int
	err   error
}

func (s *stubResolver) ResolveOn(_ context.Context, network string, before, after int64, asset string) ([]models.PricePoint, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []models.PricePoint{
		{RoundID: models.NewRoundID(2), Value: big.NewInt(4200000000000), Timestamp: before, Token: "0xToken"},
		{RoundID: models.NewRoundID(1), Value: big.NewInt(4100000000000), Timestamp: after, Token: "0xToken"},
	}, nil
}

type stubQueue struct {
	msgType string
	payload interface{}
	err     error
}

func (q *stubQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.msgType, q.payload = msgType, payload
	return "job-1", q.err
}

type stubHealth struct{ err error }

func (s stubHealth) Health(context.Context) error { return s.err }

type stubStates struct{}

func (stubStates) States() []usecase.RefreshState {
	return []usecase.RefreshState{{Asset: "BTC", Network: "BSC", Newest: 1700000000}}
}

func do(t *testing.T, h xhttp.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	s := xhttp.NewServer(nil, []xhttp.Handler{h})
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestCandlesDefaultsWindow(t *testing.T) {
	updated := int64(1700000000)
	svc := &stubCandles{resp: &models.CandlesResponse{
		Prices: []models.Candle{{T: 60, O: 1, H: 2, L: 1, C: 2}},
		Period: "1h", UpdatedAt: &updated,
	}}
	h := NewCandlesEchoHandler(nil, svc)
	now := time.Unix(1_700_000_030, 0)
	h.now = func() time.Time { return now }

	rec := do(t, h, http.MethodGet, "/api/candles/BTC?period=1h", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "max-age=60", rec.Header().Get(echo.HeaderCacheControl))
	assert.JSONEq(t, `{"prices":[{"t":60,"o":1,"h":2,"l":1,"c":2}],"period":"1h","updatedAt":1700000000}`, rec.Body.String())

	assert.Equal(t, "BTC", svc.got.Symbol)
	assert.Equal(t, uint32(56), svc.got.ChainID)
	assert.Equal(t, usecase.SourceChainlink, svc.got.Source)
	assert.Equal(t, int64(1_700_000_040), svc.got.To)
	assert.Equal(t, int64(1_700_000_030-90*86400)/60*60, svc.got.From)
}

func TestCandlesExplicitWindow(t *testing.T) {
	svc := &stubCandles{resp: &models.CandlesResponse{Prices: []models.Candle{}, Period: "5m"}}
	h := NewCandlesEchoHandler(nil, svc)

	rec := do(t, h, http.MethodGet, "/api/candles/ETH?period=5m&from=125&to=301&preferableChainId=97", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(120), svc.got.From)
	assert.Equal(t, int64(360), svc.got.To)
	assert.Equal(t, uint32(97), svc.got.ChainID)
	assert.NotContains(t, rec.Body.String(), "updatedAt")
}

func TestCandlesErrors(t *testing.T) {
	svc := &stubCandles{}
	h := NewCandlesEchoHandler(nil, svc)

	rec := do(t, h, http.MethodGet, "/api/candles/BTC", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_REQUIRED")

	svc.err = usecase.ErrInvalidPeriod
	rec = do(t, h, http.MethodGet, "/api/candles/BTC?period=2m", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = errors.New("clickhouse: connection refused")
	rec = do(t, h, http.MethodGet, "/api/candles/BTC?period=1h", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestPricesResolvesLiveWindow(t *testing.T) {
	res := &stubResolver{}
	h := NewPricesEchoHandler(nil, res, stubFeeds{}, nil)
	h.now = func() time.Time { return time.Unix(10_000, 0) }

	rec := do(t, h, http.MethodGet, "/api/prices/btc", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Network string               `json:"network"`
			Asset   string               `json:"asset"`
			From    int64                `json:"from"`
			To      int64                `json:"to"`
			Points  []models.StoredPrice `json:"points"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTC", body.Data.Asset)
	assert.Equal(t, int64(10_000-900), body.Data.From)
	require.Len(t, body.Data.Points, 2)
	assert.InDelta(t, 42000.0, body.Data.Points[0].Value, 1e-9)
	assert.Equal(t, "0xtoken", body.Data.Points[0].Token)
}

func TestPricesRejectsBadInput(t *testing.T) {
	res := &stubResolver{}
	h := NewPricesEchoHandler(nil, res, stubFeeds{}, nil)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/prices/BTC?from=200&to=100", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/prices/BTC?from=1&to=200000", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/prices/DOGE", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/prices/BTC?network=solana", "").Code)
	assert.Zero(t, res.calls)

	res.err = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/prices/BTC", "").Code)
}

func TestPricesRateLimited(t *testing.T) {
	h := NewPricesEchoHandler(nil, &stubResolver{}, stubFeeds{}, ratelimit.New(0.001, 1))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/prices/BTC", "").Code)
	rec := do(t, h, http.MethodGet, "/api/prices/BTC", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")
}

func TestBackfillEnqueues(t *testing.T) {
	q := &stubQueue{}
	h := NewBackfillEchoHandler(nil, q, stubFeeds{}, "")

	rec := do(t, h, http.MethodPost, "/api/backfill/btc", `{"until":1600000000}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"jobId":"job-1"`)
	assert.Equal(t, usecase.BackfillJobType, q.msgType)
	assert.Equal(t, usecase.BackfillPayload{Asset: "BTC", Until: 1600000000}, q.payload)
}

func TestBackfillErrors(t *testing.T) {
	q := &stubQueue{}
	h := NewBackfillEchoHandler(nil, q, stubFeeds{}, "BSC")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/backfill/DOGE", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/backfill/BTC", `{"before":10,"until":20}`).Code)

	q.err = errors.New("redis down")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/backfill/BTC", `{}`).Code)
}

func TestHealth(t *testing.T) {
	rec := do(t, NewHealthEchoHandler(nil, stubHealth{}, stubStates{}, "clickhouse"), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storage":"up"`)
	assert.Contains(t, rec.Body.String(), `"asset":"BTC"`)

	rec = do(t, NewHealthEchoHandler(nil, stubHealth{err: errors.New("down")}, nil, "clickhouse"), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	rec = do(t, NewHealthEchoHandler(nil, nil, nil, "kafka"), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storage":"disabled"`)
}
