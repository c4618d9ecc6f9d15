package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeBalance represents a native token balance
type NativeBalance struct {
	ChainID  uint64   `json:"chain_id"`
	Chain    string   `json:"chain"`
	Symbol   string   `json:"symbol"`
	Balance  *big.Int `json:"balance"`
	Decimals uint8    `json:"decimals"` // Always 18 for native tokens
}

// GetNativeBalance returns the native token balance for an address
func (c *Client) GetNativeBalance(ctx context.Context, chainID uint64, address common.Address) (*NativeBalance, error) {
	config, err := c.Config(chainID)
	if err != nil {
		return nil, err
	}

	balance, err := c.GetBalance(ctx, chainID, address)
	if err != nil {
		return nil, err
	}

	return &NativeBalance{
		ChainID:  chainID,
		Chain:    config.Key,
		Symbol:   config.NativeCurrency,
		Balance:  balance,
		Decimals: 18,
	}, nil
}

// FormatBalance formats a balance with decimals as a human-readable string
func FormatBalance(balance *big.Int, decimals uint8) string {
	if balance == nil {
		return "0"
	}

	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	balFloat := new(big.Float).SetInt(balance)
	result := new(big.Float).Quo(balFloat, divisor)

	if decimals > 6 {
		return result.Text('f', 6)
	}
	return result.Text('f', int(decimals))
}

// ParseEther converts a decimal ether amount ("0.01") to wei
func ParseEther(amount string) (*big.Int, bool) {
	value, ok := new(big.Float).SetPrec(256).SetString(amount)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	wei := new(big.Float).SetPrec(256).Mul(value, new(big.Float).SetInt(big.NewInt(1e18)))
	out, _ := wei.Int(nil)
	return out, true
}
