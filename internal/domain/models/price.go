package models

import (
	"encoding/json"
	"math/big"
)

// PricePoint is one populated round of a feed, tagged with the token it prices.
type PricePoint struct {
	RoundID   RoundID
	Value     *big.Int
	Timestamp int64
	Token     string
}

type pricePointJSON struct {
	RoundID   string `json:"roundId"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Token     string `json:"token"`
}

// MarshalJSON renders wide integers as decimal strings.
func (p PricePoint) MarshalJSON() ([]byte, error) {
	out := pricePointJSON{Timestamp: p.Timestamp, Token: p.Token}
	if p.RoundID != nil {
		out.RoundID = p.RoundID.String()
	}
	if p.Value != nil {
		out.Value = p.Value.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *PricePoint) UnmarshalJSON(b []byte) error {
	var in pricePointJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	p.Timestamp = in.Timestamp
	p.Token = in.Token
	p.RoundID, p.Value = nil, nil
	if in.RoundID != "" {
		r, err := ParseRoundID(in.RoundID)
		if err != nil {
			return err
		}
		p.RoundID = r
	}
	if in.Value != "" {
		v, ok := new(big.Int).SetString(in.Value, 10)
		if !ok {
			return &json.UnsupportedValueError{Str: in.Value}
		}
		p.Value = v
	}
	return nil
}

// StoredPrice is the persisted, presentation-scaled form of a PricePoint.
type StoredPrice struct {
	ChainID   uint32  `json:"chainId"`
	Token     string  `json:"token"`
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
	Raw       string  `json:"raw"`
	RoundID   string  `json:"roundId"`
}

// Feed locates one price feed on a network.
type Feed struct {
	Network  string
	ChainID  uint32
	Asset    string
	Address  string
	Token    string
	Decimals int32
	RPCURL   string
}
