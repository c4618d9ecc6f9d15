package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Client manages connections to multiple EVM chains, keyed by chain ID.
// It is the chain-interaction layer wallet backends delegate nonce, gas and
// broadcast to.
type Client struct {
	registry *Registry
	clients  map[uint64]*ethclient.Client
	limiters map[uint64]*rate.Limiter
	rps      rate.Limit
	burst    int
	mu       sync.Mutex
}

// Option configures a Client
type Option func(*Client)

// WithRateLimit caps outbound requests per chain. Public RPC endpoints
// throttle aggressively, so every call waits on a per-chain limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rps = rate.Limit(rps)
		}
		if burst > 0 {
			c.burst = burst
		}
	}
}

// NewClient creates a multi-chain client over the given chain configs.
// A nil map uses DefaultChains.
func NewClient(chains map[string]*ChainConfig, opts ...Option) *Client {
	if chains == nil {
		chains = DefaultChains()
	}
	c := &Client{
		registry: NewRegistry(chains),
		clients:  make(map[uint64]*ethclient.Client),
		limiters: make(map[uint64]*rate.Limiter),
		rps:      rate.Inf,
		burst:    1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes chain lookups by name or ID
func (c *Client) Registry() *Registry {
	return c.registry
}

// Config returns the configuration for a chain ID
func (c *Client) Config(chainID uint64) (*ChainConfig, error) {
	cfg, ok := c.registry.ByID(chainID)
	if !ok {
		return nil, fmt.Errorf("unknown chain id: %d", chainID)
	}
	return cfg, nil
}

// Supports reports whether chainID is configured
func (c *Client) Supports(chainID uint64) bool {
	_, ok := c.registry.ByID(chainID)
	return ok
}

// getClient returns an ethclient for the given chain, creating one if needed.
// Acquires the lock upfront to prevent duplicate connection creation under
// contention; connection creation is not a hot path.
func (c *Client) getClient(ctx context.Context, chainID uint64) (*ethclient.Client, error) {
	c.mu.Lock()
	limiter, ok := c.limiters[chainID]
	if !ok {
		limiter = rate.NewLimiter(c.rps, c.burst)
		c.limiters[chainID] = limiter
	}
	client, err := c.dialLocked(chainID)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) dialLocked(chainID uint64) (*ethclient.Client, error) {
	config, ok := c.registry.ByID(chainID)
	if !ok {
		return nil, fmt.Errorf("unknown chain id: %d", chainID)
	}

	if client, exists := c.clients[chainID]; exists {
		return client, nil
	}

	var lastErr error
	for _, rpcURL := range config.RPCURLs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := ethclient.DialContext(ctx, rpcURL)
		cancel()

		if err != nil {
			lastErr = err
			continue
		}

		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		remoteID, err := client.ChainID(ctx)
		cancel()

		if err != nil {
			client.Close()
			lastErr = err
			continue
		}

		if remoteID.Cmp(config.ChainID) != 0 {
			client.Close()
			lastErr = fmt.Errorf("chain ID mismatch: expected %s, got %s", config.ChainID.String(), remoteID.String())
			continue
		}

		c.clients[chainID] = client
		return client, nil
	}

	return nil, fmt.Errorf("failed to connect to %s: %w", config.Name, lastErr)
}

// GetBalance returns the native token balance for an address on a chain
func (c *Client) GetBalance(ctx context.Context, chainID uint64, address common.Address) (*big.Int, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, address, nil)
}

// PendingNonceAt returns the next nonce for an address
func (c *Client) PendingNonceAt(ctx context.Context, chainID uint64, address common.Address) (uint64, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, address)
}

// EstimateGas estimates gas for a transaction
func (c *Client) EstimateGas(ctx context.Context, chainID uint64, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return 0, err
	}
	return client.EstimateGas(ctx, msg)
}

// SuggestGasPrice returns the suggested gas price
func (c *Client) SuggestGasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

// SuggestGasTipCap returns the suggested gas tip cap for EIP-1559 transactions
func (c *Client) SuggestGasTipCap(ctx context.Context, chainID uint64) (*big.Int, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasTipCap(ctx)
}

// SendTransaction broadcasts a signed transaction
func (c *Client) SendTransaction(ctx context.Context, chainID uint64, tx *types.Transaction) error {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

// CallContract executes a read-only contract call at the latest block
func (c *Client) CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, nil)
}

// CodeAt returns the deployed bytecode at address, empty for EOAs and
// undeployed smart accounts
func (c *Client) CodeAt(ctx context.Context, chainID uint64, address common.Address) ([]byte, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.CodeAt(ctx, address, nil)
}

// WaitMined polls until the transaction has a receipt or ctx ends
func (c *Client) WaitMined(ctx context.Context, chainID uint64, txHash common.Hash) (*types.Receipt, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := client.TransactionReceipt(ctx, txHash)
			if err == nil {
				return receipt, nil
			}
			// Not yet mined
		}
	}
}

// Close closes all client connections
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		client.Close()
	}
	c.clients = make(map[uint64]*ethclient.Client)
}
