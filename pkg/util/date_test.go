package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("yesterday", def).Equal(def))
}

func TestFloorCeilUnix(t *testing.T) {
	assert.Equal(t, int64(120), FloorUnix(179, 60))
	assert.Equal(t, int64(180), CeilUnix(179, 60))
	assert.Equal(t, int64(180), CeilUnix(180, 60))
	assert.Equal(t, int64(-60), FloorUnix(-1, 60))
	assert.Equal(t, int64(7), FloorUnix(7, 0))
}

func TestParseIntDefaults(t *testing.T) {
	assert.Equal(t, 5, ParseIntDefault("", 5))
	assert.Equal(t, 5, ParseIntDefault("x", 5))
	assert.Equal(t, 12, ParseIntDefault("12", 5))
	assert.Equal(t, int64(1700000000), ParseInt64Default("1700000000", 0))
	assert.Equal(t, "BTC", NormalizeSymbol(" btc "))
}
