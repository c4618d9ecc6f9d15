package tx

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrInvalidRequest is returned when a request cannot produce a transaction.
var ErrInvalidRequest = errors.New("invalid transaction request")

// Request captures a state-changing transaction an account should perform.
// Nil pointer fields are filled in from the chain.
type Request struct {
	To             *common.Address `json:"to,omitempty"`
	Value          *big.Int        `json:"value,omitempty"`
	Data           []byte          `json:"data,omitempty"`
	Gas            *uint64         `json:"gas,omitempty"`
	Nonce          *uint64         `json:"nonce,omitempty"`
	MaxFeePerGas   *big.Int        `json:"maxFeePerGas,omitempty"`
	MaxPriorityFee *big.Int        `json:"maxPriorityFeePerGas,omitempty"`
}

// Validate checks the request shape. Contract creation (nil To) needs data.
func (r Request) Validate() error {
	if r.Value != nil && r.Value.Sign() < 0 {
		return fmt.Errorf("%w: negative value", ErrInvalidRequest)
	}
	if r.To == nil && len(r.Data) == 0 {
		return fmt.Errorf("%w: missing recipient", ErrInvalidRequest)
	}
	if r.MaxFeePerGas != nil && r.MaxPriorityFee != nil && r.MaxPriorityFee.Cmp(r.MaxFeePerGas) > 0 {
		return fmt.Errorf("%w: priority fee above max fee", ErrInvalidRequest)
	}
	return nil
}

// ValueOrZero returns Value, or zero when unset
func (r Request) ValueOrZero() *big.Int {
	if r.Value == nil {
		return new(big.Int)
	}
	return r.Value
}

// RPCArgs renders the request as eth_sendTransaction / eth_signTransaction
// parameters for a wallet that fills in the rest itself.
func (r Request) RPCArgs(from common.Address) map[string]any {
	args := map[string]any{
		"from":  from,
		"value": (*hexutil.Big)(r.ValueOrZero()),
	}
	if r.To != nil {
		args["to"] = *r.To
	}
	if len(r.Data) > 0 {
		args["data"] = hexutil.Bytes(r.Data)
	}
	if r.Gas != nil {
		args["gas"] = hexutil.Uint64(*r.Gas)
	}
	if r.Nonce != nil {
		args["nonce"] = hexutil.Uint64(*r.Nonce)
	}
	if r.MaxFeePerGas != nil {
		args["maxFeePerGas"] = (*hexutil.Big)(r.MaxFeePerGas)
	}
	if r.MaxPriorityFee != nil {
		args["maxPriorityFeePerGas"] = (*hexutil.Big)(r.MaxPriorityFee)
	}
	return args
}

// TxArgs renders an already-built transaction as wallet RPC parameters.
func TxArgs(from common.Address, t *types.Transaction) map[string]any {
	args := map[string]any{
		"from":  from,
		"value": (*hexutil.Big)(t.Value()),
		"gas":   hexutil.Uint64(t.Gas()),
		"nonce": hexutil.Uint64(t.Nonce()),
	}
	if t.To() != nil {
		args["to"] = *t.To()
	}
	if len(t.Data()) > 0 {
		args["data"] = hexutil.Bytes(t.Data())
	}
	if t.Type() == types.DynamicFeeTxType {
		args["maxFeePerGas"] = (*hexutil.Big)(t.GasFeeCap())
		args["maxPriorityFeePerGas"] = (*hexutil.Big)(t.GasTipCap())
	} else {
		args["gasPrice"] = (*hexutil.Big)(t.GasPrice())
	}
	if id := t.ChainId(); id != nil && id.Sign() > 0 {
		args["chainId"] = (*hexutil.Big)(id)
	}
	return args
}

// Backend is the slice of the chain client needed to fill a request.
type Backend interface {
	PendingNonceAt(ctx context.Context, chainID uint64, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context, chainID uint64) (*big.Int, error)
	SuggestGasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
	EstimateGas(ctx context.Context, chainID uint64, msg ethereum.CallMsg) (uint64, error)
}

// SuggestedFees carries gas estimates so the caller can render them.
type SuggestedFees struct {
	GasLimit         uint64
	MaxFeePerGas     *big.Int
	MaxPriorityFee   *big.Int
	EstimatedCostWei *big.Int
}

// BuildUnsignedTx prepares an unsigned EIP-1559 transaction for chainID.
func BuildUnsignedTx(ctx context.Context, b Backend, chainID uint64, from common.Address, req Request) (*types.Transaction, SuggestedFees, error) {
	if err := req.Validate(); err != nil {
		return nil, SuggestedFees{}, err
	}
	value := req.ValueOrZero()

	// Nonce
	var nonce uint64
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else {
		n, err := b.PendingNonceAt(ctx, chainID, from)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("nonce: %w", err)
		}
		nonce = n
	}

	// Fees
	maxFee := req.MaxFeePerGas
	maxPrio := req.MaxPriorityFee
	if maxPrio == nil {
		tip, err := b.SuggestGasTipCap(ctx, chainID)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("gas tip: %w", err)
		}
		maxPrio = tip
	}
	if maxFee == nil {
		price, err := b.SuggestGasPrice(ctx, chainID)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("gas price: %w", err)
		}
		// Headroom for base fee growth over the next blocks
		maxFee = new(big.Int).Add(new(big.Int).Mul(price, big.NewInt(2)), maxPrio)
	}
	if maxPrio.Cmp(maxFee) > 0 {
		maxPrio = new(big.Int).Set(maxFee)
	}

	// Gas limit
	var gasLimit uint64
	if req.Gas != nil {
		gasLimit = *req.Gas
	} else {
		gl, err := b.EstimateGas(ctx, chainID, ethereum.CallMsg{
			From:      from,
			To:        req.To,
			GasFeeCap: maxFee,
			GasTipCap: maxPrio,
			Value:     value,
			Data:      req.Data,
		})
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = gl
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: maxPrio,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	})

	total := new(big.Int).Mul(maxFee, new(big.Int).SetUint64(gasLimit))
	total.Add(total, value)

	return tx, SuggestedFees{
		GasLimit:         gasLimit,
		MaxFeePerGas:     maxFee,
		MaxPriorityFee:   maxPrio,
		EstimatedCostWei: total,
	}, nil
}
