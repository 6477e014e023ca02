package chainlink

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/puzpuzpuz/xsync/v4"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
)

// DialFunc opens a contract caller for an RPC endpoint.
type DialFunc func(ctx context.Context, rpcURL string) (ContractCaller, error)

// Client hands out feed readers, sharing one node connection per RPC url.
type Client struct {
	defaultRPC string
	dial       DialFunc
	callers    *xsync.Map[string, ContractCaller]
}

type ClientOption func(*Client)

// WithDialer replaces the go-ethereum dialer, mainly for tests.
func WithDialer(d DialFunc) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.dial = d
		}
	}
}

func NewClient(defaultRPC string, opts ...ClientOption) *Client {
	c := &Client{
		defaultRPC: defaultRPC,
		dial:       dialEthereum,
		callers:    xsync.NewMap[string, ContractCaller](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func dialEthereum(ctx context.Context, rpcURL string) (ContractCaller, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return cli, nil
}

// ForFeed binds a reader to feed.Address on the feed's RPC url, or the
// client default when the feed carries none.
func (c *Client) ForFeed(ctx context.Context, feed models.Feed) (drepo.RoundStore, error) {
	url := feed.RPCURL
	if url == "" {
		url = c.defaultRPC
	}
	if url == "" {
		return nil, fmt.Errorf("no rpc url for feed %s on %s", feed.Asset, feed.Network)
	}
	caller, err := c.caller(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewFeed(caller, feed.Address)
}

func (c *Client) caller(ctx context.Context, url string) (ContractCaller, error) {
	if cc, ok := c.callers.Load(url); ok {
		return cc, nil
	}
	var dialErr error
	cc, _ := c.callers.Compute(url, func(old ContractCaller, loaded bool) (ContractCaller, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		fresh, err := c.dial(ctx, url)
		if err != nil {
			dialErr = err
			return nil, xsync.CancelOp
		}
		return fresh, xsync.UpdateOp
	})
	if dialErr != nil {
		return nil, fmt.Errorf("dial %s: %w", url, dialErr)
	}
	if cc == nil {
		cc, _ = c.callers.Load(url)
	}
	return cc, nil
}

// Close drops every cached node connection.
func (c *Client) Close() {
	c.callers.Range(func(url string, cc ContractCaller) bool {
		if closer, ok := cc.(interface{ Close() }); ok {
			closer.Close()
		}
		c.callers.Delete(url)
		return true
	})
}

var _ drepo.RoundStoreFactory = (*Client)(nil)
