package models

// Candle is an OHLC bar for one period bucket.
type Candle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
}

// CandlesResponse is what the candles endpoint returns.
type CandlesResponse struct {
	Prices    []Candle `json:"prices"`
	Period    string   `json:"period"`
	UpdatedAt *int64   `json:"updatedAt,omitempty"`
}
