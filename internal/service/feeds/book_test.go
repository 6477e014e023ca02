package feeds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drepo "OraclePull/internal/domain/repository"
)

const bookYAML = `
default: BSC
networks:
  - name: BSC
    chain_id: 56
    rpc_url: https://bsc-dataseed.binance.org/
    feeds:
      BTC:
        feed: "0x264990fbd0A4796A3E3d8E37C4d5F87a3aCa5Ebf"
        token: "0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c"
      eth:
        feed: "0x9ef1B8c0E4F7dc8bF5719Ea496883DC6401d5b2e"
        token: "0x2170Ed0880ac9A755fd29B2688956BD959F933F8"
        decimals: 8
`

func loadTestBook(t *testing.T) *Book {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bookYAML), 0o600))
	b, err := LoadBook(path, nil)
	require.NoError(t, err)
	return b
}

func TestBookResolves(t *testing.T) {
	b := loadTestBook(t)

	feed, err := b.ResolveFeed("bsc", "btc")
	require.NoError(t, err)
	assert.Equal(t, "BSC", feed.Network)
	assert.Equal(t, uint32(56), feed.ChainID)
	assert.Equal(t, "0x264990fbd0A4796A3E3d8E37C4d5F87a3aCa5Ebf", feed.Address)
	assert.Equal(t, int32(8), feed.Decimals)
	assert.Equal(t, "https://bsc-dataseed.binance.org/", feed.RPCURL)

	token, err := b.ResolveToken("BSC", "ETH")
	require.NoError(t, err)
	assert.Equal(t, "0x2170Ed0880ac9A755fd29B2688956BD959F933F8", token)

	assets, err := b.Assets("BSC")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, assets)
}

func TestBookUnknownInputs(t *testing.T) {
	b := loadTestBook(t)

	_, err := b.ResolveFeed("Polygon", "BTC")
	assert.ErrorIs(t, err, drepo.ErrUnknownNetwork)
	_, err = b.ResolveToken("BSC", "DOGE")
	assert.ErrorIs(t, err, drepo.ErrUnknownAsset)
	_, err = b.ChainID("Polygon")
	assert.ErrorIs(t, err, drepo.ErrUnknownNetwork)
}

func TestBookChainFallback(t *testing.T) {
	b := loadTestBook(t)

	assert.Equal(t, "BSC", b.NetworkForChain(56))
	assert.Equal(t, "BSC", b.NetworkForChain(137))
	assert.Equal(t, "BSC", b.DefaultNetwork())
}

func TestBookRejectsBadEntries(t *testing.T) {
	_, err := NewBook("BSC", []Network{{Name: "BSC", ChainID: 56, Feeds: map[string]Asset{"BTC": {Feed: "nope", Token: "0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c"}}}}, nil)
	assert.Error(t, err)

	_, err = NewBook("ETH", []Network{{Name: "BSC", ChainID: 56}}, nil)
	assert.ErrorIs(t, err, drepo.ErrUnknownNetwork)
}

func TestBookWithRPC(t *testing.T) {
	b := loadTestBook(t)
	require.NoError(t, b.WithRPC("bsc", "http://localhost:8545"))

	feed, err := b.ResolveFeed("BSC", "BTC")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", feed.RPCURL)
}
