package models

import (
	"fmt"
	"math/big"
)

// RoundID identifies a position in a feed's append-only round sequence.
// Aggregator round ids are uint80 (phase<<64 | aggregator round), so they are
// carried as big integers end to end.
type RoundID = *big.Int

var roundNotFound = big.NewInt(-1)

// NewRoundID builds a RoundID from an int64.
func NewRoundID(v int64) RoundID { return big.NewInt(v) }

// ParseRoundID parses a base-10 round id.
func ParseRoundID(s string) (RoundID, error) {
	r, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid round id %q", s)
	}
	return r, nil
}

// RoundNotFound returns a fresh "-1" sentinel.
func RoundNotFound() RoundID { return new(big.Int).Set(roundNotFound) }

// IsRoundNotFound reports whether r is nil or the -1 sentinel.
func IsRoundNotFound(r RoundID) bool {
	return r == nil || r.Cmp(roundNotFound) == 0
}

// CloneRound returns a copy of r.
func CloneRound(r RoundID) RoundID { return new(big.Int).Set(r) }

// ShiftRound returns r+delta as a new value; r is left untouched.
func ShiftRound(r RoundID, delta int64) RoundID {
	return new(big.Int).Add(r, big.NewInt(delta))
}

// RoundDistance returns hi-lo as a new value.
func RoundDistance(hi, lo RoundID) *big.Int {
	return new(big.Int).Sub(hi, lo)
}

// RoundPayload is the data recorded by the feed at one round.
type RoundPayload struct {
	RoundID   RoundID
	Value     *big.Int
	UpdatedAt int64
}

// Populated is false for rounds that were never written.
func (p RoundPayload) Populated() bool { return p.UpdatedAt != 0 }

// RoundRange is a closed [After, Before] bracket of round ids.
// Either edge may be the not-found sentinel.
type RoundRange struct {
	After  RoundID
	Before RoundID
}

// EmptyRange returns a range with both edges unresolved.
func EmptyRange() RoundRange {
	return RoundRange{After: RoundNotFound(), Before: RoundNotFound()}
}

// Found reports whether both edges were resolved.
func (r RoundRange) Found() bool {
	return !IsRoundNotFound(r.After) && !IsRoundNotFound(r.Before)
}

// Valid reports whether the range can be fetched.
func (r RoundRange) Valid() bool {
	return r.Found() && r.After.Cmp(r.Before) <= 0
}

func (r RoundRange) String() string {
	return fmt.Sprintf("[%s, %s]", roundString(r.After), roundString(r.Before))
}

func roundString(r RoundID) string {
	if r == nil {
		return "-1"
	}
	return r.String()
}

// SearchWindow is the caller supplied [After, Before] unix-seconds window.
type SearchWindow struct {
	After  int64
	Before int64
}
