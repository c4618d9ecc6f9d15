package chain

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// ChainConfig holds configuration for an EVM chain.
// Invariant: ChainID and ChainIDInt must always represent the same value.
// ChainIDInt exists for config serialization; ChainID is used for signing.
type ChainConfig struct {
	Key            string   `mapstructure:"-" yaml:"-"`
	Name           string   `mapstructure:"name" yaml:"name"`
	ChainID        *big.Int `mapstructure:"-" yaml:"-"`
	ChainIDInt     int64    `mapstructure:"chain_id" yaml:"chain_id"`
	RPCURLs        []string `mapstructure:"rpc_urls" yaml:"rpc_urls"`
	ExplorerURL    string   `mapstructure:"explorer_url" yaml:"explorer_url"`
	NativeCurrency string   `mapstructure:"native_currency" yaml:"native_currency"`
	IsTestnet      bool     `mapstructure:"is_testnet" yaml:"is_testnet"`
}

// ID returns the chain ID as a uint64
func (c *ChainConfig) ID() uint64 {
	return uint64(c.ChainIDInt)
}

// TxURL returns the explorer link for a transaction hash
func (c *ChainConfig) TxURL(hash string) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash
}

func newConfig(key, name string, id int64, currency, explorer string, testnet bool, rpcs ...string) *ChainConfig {
	return &ChainConfig{
		Key:            key,
		Name:           name,
		ChainID:        big.NewInt(id),
		ChainIDInt:     id,
		RPCURLs:        rpcs,
		ExplorerURL:    explorer,
		NativeCurrency: currency,
		IsTestnet:      testnet,
	}
}

// DefaultChains returns the default chain configurations keyed by short name
func DefaultChains() map[string]*ChainConfig {
	return map[string]*ChainConfig{
		"ethereum": newConfig("ethereum", "Ethereum Mainnet", 1, "ETH", "https://etherscan.io", false,
			"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"),
		"base": newConfig("base", "Base", 8453, "ETH", "https://basescan.org", false,
			"https://mainnet.base.org", "https://base.llamarpc.com"),
		"arbitrum": newConfig("arbitrum", "Arbitrum One", 42161, "ETH", "https://arbiscan.io", false,
			"https://arb1.arbitrum.io/rpc", "https://arbitrum.llamarpc.com"),
		"optimism": newConfig("optimism", "Optimism", 10, "ETH", "https://optimistic.etherscan.io", false,
			"https://mainnet.optimism.io", "https://optimism.llamarpc.com"),
		"polygon": newConfig("polygon", "Polygon", 137, "MATIC", "https://polygonscan.com", false,
			"https://polygon-rpc.com", "https://polygon.llamarpc.com"),
		"sepolia": newConfig("sepolia", "Sepolia Testnet", 11155111, "ETH", "https://sepolia.etherscan.io", true,
			"https://rpc.sepolia.org", "https://sepolia.drpc.org"),
		"base-sepolia": newConfig("base-sepolia", "Base Sepolia Testnet", 84532, "ETH", "https://sepolia.basescan.org", true,
			"https://sepolia.base.org"),
	}
}

// Normalize fills in derived fields after a config was decoded from viper
func (c *ChainConfig) Normalize(key string) error {
	c.Key = key
	if c.ChainIDInt <= 0 {
		return fmt.Errorf("chain %s: chain_id must be positive", key)
	}
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("chain %s: at least one rpc url is required", key)
	}
	c.ChainID = big.NewInt(c.ChainIDInt)
	if c.Name == "" {
		c.Name = key
	}
	if c.NativeCurrency == "" {
		c.NativeCurrency = "ETH"
	}
	return nil
}

// Registry indexes chain configs by short name and by chain ID
type Registry struct {
	byName map[string]*ChainConfig
	byID   map[uint64]*ChainConfig
}

// NewRegistry builds a registry from configs keyed by short name. Later
// entries with the same chain ID replace earlier ones.
func NewRegistry(chains map[string]*ChainConfig) *Registry {
	r := &Registry{
		byName: make(map[string]*ChainConfig, len(chains)),
		byID:   make(map[uint64]*ChainConfig, len(chains)),
	}
	for key, cfg := range chains {
		r.add(key, cfg)
	}
	return r
}

func (r *Registry) add(key string, cfg *ChainConfig) {
	if prev, ok := r.byID[cfg.ID()]; ok && prev.Key != key {
		delete(r.byName, prev.Key)
	}
	cfg.Key = key
	r.byName[key] = cfg
	r.byID[cfg.ID()] = cfg
}

// ByID returns the config for a chain ID
func (r *Registry) ByID(chainID uint64) (*ChainConfig, bool) {
	cfg, ok := r.byID[chainID]
	return cfg, ok
}

// Resolve accepts a short name ("base") or a decimal chain ID ("8453")
func (r *Registry) Resolve(nameOrID string) (*ChainConfig, error) {
	key := strings.ToLower(strings.TrimSpace(nameOrID))
	if cfg, ok := r.byName[key]; ok {
		return cfg, nil
	}
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		if cfg, ok := r.byID[id]; ok {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("unknown chain: %s", nameOrID)
}

// Names returns the configured short names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
