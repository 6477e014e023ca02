package api

// CandlesRequest is bound from GET /api/candles/:symbol.
type CandlesRequest struct {
	Symbol            string `param:"symbol" validate:"required,asset"`
	From              int64  `query:"from" validate:"gte=0"`
	To                int64  `query:"to" validate:"omitempty,gtefield=From"`
	Period            string `query:"period" validate:"required"`
	PreferableChainID uint32 `query:"preferableChainId" default:"56"`
	PreferableSource  string `query:"preferableSource" default:"chainlink"`
}

// PricesRequest is bound from GET /api/prices/:symbol.
type PricesRequest struct {
	Symbol  string `param:"symbol" validate:"required,asset"`
	From    int64  `query:"from" validate:"gte=0"`
	To      int64  `query:"to" validate:"omitempty,gtefield=From"`
	Network string `query:"network" validate:"omitempty,network"`
}

// BackfillRequest is bound from POST /api/backfill/:symbol.
type BackfillRequest struct {
	Symbol string `param:"symbol" validate:"required,asset"`
	Before int64  `json:"before" validate:"gte=0"`
	Until  int64  `json:"until" validate:"gte=0"`
}

type PricesResponse struct {
	Network string      `json:"network"`
	Asset   string      `json:"asset"`
	From    int64       `json:"from"`
	To      int64       `json:"to"`
	Points  interface{} `json:"points"`
}

type BackfillResponse struct {
	JobID  string `json:"jobId"`
	Asset  string `json:"asset"`
	Before int64  `json:"before,omitempty"`
	Until  int64  `json:"until,omitempty"`
}
