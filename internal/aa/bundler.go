package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCCaller is satisfied by *rpc.Client
type RPCCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// GasEstimate is the eth_estimateUserOperationGas result
type GasEstimate struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}

// Bundler is an EIP-4337 bundler JSON-RPC client.
type Bundler struct {
	rpc RPCCaller
}

// DialBundler connects to a bundler endpoint
func DialBundler(ctx context.Context, url string) (*Bundler, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial bundler: %w", err)
	}
	return NewBundler(c), nil
}

// NewBundler wraps an existing RPC client
func NewBundler(c RPCCaller) *Bundler {
	return &Bundler{rpc: c}
}

// Close closes the RPC connection
func (b *Bundler) Close() {
	b.rpc.Close()
}

// EstimateUserOperationGas asks the bundler for the op's gas limits. The op
// should carry a dummy signature of the right length.
func (b *Bundler) EstimateUserOperationGas(ctx context.Context, op *UserOperation, entryPoint common.Address) (*GasEstimate, error) {
	var res struct {
		PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
		VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
		CallGasLimit         *hexutil.Big `json:"callGasLimit"`
	}
	if err := b.rpc.CallContext(ctx, &res, "eth_estimateUserOperationGas", op, entryPoint); err != nil {
		return nil, err
	}
	if res.CallGasLimit == nil || res.VerificationGasLimit == nil || res.PreVerificationGas == nil {
		return nil, fmt.Errorf("incomplete gas estimate from bundler")
	}
	return &GasEstimate{
		PreVerificationGas:   res.PreVerificationGas.ToInt(),
		VerificationGasLimit: res.VerificationGasLimit.ToInt(),
		CallGasLimit:         res.CallGasLimit.ToInt(),
	}, nil
}

// SendUserOperation submits a signed op and returns its userOpHash
func (b *Bundler) SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	if err := b.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", op, entryPoint); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// GetUserOperationReceipt returns nil while the op is pending
func (b *Bundler) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOpReceipt, error) {
	var receipt *UserOpReceipt
	if err := b.rpc.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, err
	}
	return receipt, nil
}
