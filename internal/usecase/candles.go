package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"OraclePull/internal/domain/models"
	applogger "OraclePull/pkg/logger"
	"OraclePull/pkg/util"
)

var ErrInvalidPeriod = errors.New("invalid period")

var periods = map[string]int64{
	"1m":  60,
	"5m":  5 * 60,
	"15m": 15 * 60,
	"1h":  60 * 60,
	"4h":  4 * 60 * 60,
	"1d":  24 * 60 * 60,
	"1w":  7 * 24 * 60 * 60,
}

// single-sample candles are widened so they still render as a bar
const (
	singleHighFactor = 1.0003
	singleLowFactor  = 0.9996
)

// Periods lists the supported candle periods, shortest first.
func Periods() []string {
	out := make([]string, 0, len(periods))
	for p := range periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return periods[out[i]] < periods[out[j]] })
	return out
}

// ParsePeriod normalises a period name and checks it is supported.
func ParsePeriod(p string) (string, int64, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	secs, ok := periods[p]
	if !ok {
		return "", 0, fmt.Errorf("%w, valid periods are %s", ErrInvalidPeriod, strings.Join(Periods(), ","))
	}
	return p, secs, nil
}

// CandlesUseCase turns stored prices into OHLC candles.
type CandlesUseCase struct {
	query *PriceQuery
	l     *applogger.Logger
}

func NewCandlesUseCase(query *PriceQuery, l *applogger.Logger) *CandlesUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &CandlesUseCase{query: query, l: l}
}

type GetCandlesParams struct {
	Symbol  string
	From    int64
	To      int64
	Period  string
	ChainID uint32
	Source  string
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*models.CandlesResponse, error) {
	period, _, err := ParsePeriod(p.Period)
	if err != nil {
		return nil, err
	}
	prices, err := uc.query.GetPrices(ctx, p.From, p.To, p.ChainID, p.Source, p.Symbol)
	if err != nil {
		return nil, err
	}

	resp := &models.CandlesResponse{Prices: BuildCandles(prices, period, uc.l), Period: period}
	if len(prices) > 0 {
		updatedAt := prices[len(prices)-1].Timestamp
		resp.UpdatedAt = &updatedAt
	}
	return resp, nil
}

// BuildCandles groups ascending prices into period buckets. Each candle
// opens at the previous close; prices older than their predecessor are
// skipped. Fewer than two prices give no candles.
func BuildCandles(prices []*models.StoredPrice, period string, l *applogger.Logger) []models.Candle {
	step, ok := periods[period]
	if !ok || len(prices) < 2 {
		return []models.Candle{}
	}
	if l == nil {
		l = applogger.Nop()
	}

	first := prices[0]
	group := util.FloorUnix(first.Timestamp, step)
	prevTS := first.Timestamp
	o, h, lo, c := first.Value, first.Value, first.Value, first.Value
	count := 1

	out := make([]models.Candle, 0, len(prices)/2+1)
	flush := func() {
		if count == 1 {
			out = append(out, models.Candle{T: group, O: o, H: h * singleHighFactor, L: lo * singleLowFactor, C: c})
			return
		}
		out = append(out, models.Candle{T: group, O: o, H: h, L: lo, C: c})
	}

	for _, p := range prices[1:] {
		ts := p.Timestamp
		if prevTS > ts {
			l.Warn("price out of order",
				applogger.String("prev", util.ReadableUTC(prevTS)),
				applogger.String("ts", util.ReadableUTC(ts)))
			continue
		}
		g := util.FloorUnix(ts, step)
		if g != group {
			flush()
			count = 0
			o = c
			h, lo = c, c
		}
		c = p.Value
		if p.Value > h {
			h = p.Value
		}
		if p.Value < lo {
			lo = p.Value
		}
		group = g
		prevTS = ts
		count++
	}
	flush()
	return out
}
