package feeds

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	applogger "OraclePull/pkg/logger"
)

// Network is one chain entry of the address book.
type Network struct {
	Name    string           `yaml:"name"`
	ChainID uint32           `yaml:"chain_id"`
	RPCURL  string           `yaml:"rpc_url"`
	Feeds   map[string]Asset `yaml:"feeds"`
}

// Asset locates an asset's price feed and the token it prices.
type Asset struct {
	Feed     string `yaml:"feed"`
	Token    string `yaml:"token"`
	Decimals int32  `yaml:"decimals"`
}

// Book resolves network and asset names against a static address book.
// Lookups of network and asset names are case-insensitive.
type Book struct {
	def      string
	networks map[string]Network
	byChain  map[uint32]string
	l        *applogger.Logger
}

// NewBook validates and indexes networks. def names the fallback network.
func NewBook(def string, networks []Network, l *applogger.Logger) (*Book, error) {
	if l == nil {
		l = applogger.Nop()
	}
	b := &Book{
		networks: make(map[string]Network, len(networks)),
		byChain:  make(map[uint32]string, len(networks)),
		l:        l,
	}
	for _, n := range networks {
		key := strings.ToUpper(n.Name)
		if key == "" {
			return nil, fmt.Errorf("network without name")
		}
		if _, dup := b.networks[key]; dup {
			return nil, fmt.Errorf("duplicate network %s", n.Name)
		}
		assets := make(map[string]Asset, len(n.Feeds))
		for name, a := range n.Feeds {
			if !common.IsHexAddress(a.Feed) || !common.IsHexAddress(a.Token) {
				return nil, fmt.Errorf("network %s asset %s: feed and token must be hex addresses", n.Name, name)
			}
			if a.Decimals == 0 {
				a.Decimals = 8
			}
			assets[strings.ToUpper(name)] = a
		}
		n.Feeds = assets
		b.networks[key] = n
		b.byChain[n.ChainID] = n.Name
	}
	if def == "" && len(networks) > 0 {
		def = networks[0].Name
	}
	if _, ok := b.networks[strings.ToUpper(def)]; !ok {
		return nil, fmt.Errorf("default network %q: %w", def, drepo.ErrUnknownNetwork)
	}
	b.def = def
	return b, nil
}

// LoadBook reads a YAML document of the form {default: BSC, networks: [...]}.
func LoadBook(path string, l *applogger.Logger) (*Book, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read address book: %w", err)
	}
	var doc struct {
		Default  string    `yaml:"default"`
		Networks []Network `yaml:"networks"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse address book: %w", err)
	}
	return NewBook(doc.Default, doc.Networks, l)
}

func (b *Book) network(name string) (Network, error) {
	n, ok := b.networks[strings.ToUpper(name)]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", drepo.ErrUnknownNetwork, name)
	}
	return n, nil
}

func (b *Book) asset(network, asset string) (Network, Asset, error) {
	n, err := b.network(network)
	if err != nil {
		return Network{}, Asset{}, err
	}
	a, ok := n.Feeds[strings.ToUpper(asset)]
	if !ok {
		return Network{}, Asset{}, fmt.Errorf("%w: %s on %s", drepo.ErrUnknownAsset, asset, n.Name)
	}
	return n, a, nil
}

func (b *Book) ResolveFeed(network, asset string) (models.Feed, error) {
	n, a, err := b.asset(network, asset)
	if err != nil {
		return models.Feed{}, err
	}
	return models.Feed{
		Network:  n.Name,
		ChainID:  n.ChainID,
		Asset:    strings.ToUpper(asset),
		Address:  a.Feed,
		Token:    a.Token,
		Decimals: a.Decimals,
		RPCURL:   n.RPCURL,
	}, nil
}

func (b *Book) ResolveToken(network, asset string) (string, error) {
	_, a, err := b.asset(network, asset)
	if err != nil {
		return "", err
	}
	return a.Token, nil
}

// Assets lists a network's asset names, sorted.
func (b *Book) Assets(network string) ([]string, error) {
	n, err := b.network(network)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(n.Feeds))
	for name := range n.Feeds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Book) ChainID(network string) (uint32, error) {
	n, err := b.network(network)
	if err != nil {
		return 0, err
	}
	return n.ChainID, nil
}

// NetworkForChain falls back to the default network for unknown chains.
func (b *Book) NetworkForChain(chainID uint32) string {
	if name, ok := b.byChain[chainID]; ok {
		return name
	}
	b.l.Warn("unsupported chain, falling back to default network",
		applogger.Uint32("chain_id", chainID), applogger.String("network", b.def))
	return b.def
}

func (b *Book) DefaultNetwork() string { return b.def }

// WithRPC overrides a network's RPC url, used for env overrides.
func (b *Book) WithRPC(network, url string) error {
	key := strings.ToUpper(network)
	n, ok := b.networks[key]
	if !ok {
		return fmt.Errorf("%w: %s", drepo.ErrUnknownNetwork, network)
	}
	n.RPCURL = url
	b.networks[key] = n
	return nil
}

var _ drepo.FeedResolver = (*Book)(nil)
