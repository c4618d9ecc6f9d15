package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Caller is the read-only chain access the factory client needs.
// chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error)
	CodeAt(ctx context.Context, chainID uint64, address common.Address) ([]byte, error)
}

// Factory talks to an account factory and the EntryPoint on one chain.
type Factory struct {
	caller     Caller
	chainID    uint64
	address    common.Address
	entryPoint common.Address
}

// NewFactory creates a factory client. A zero entryPoint uses EntryPointV06.
func NewFactory(caller Caller, chainID uint64, factory, entryPoint common.Address) *Factory {
	if entryPoint == (common.Address{}) {
		entryPoint = EntryPointV06
	}
	return &Factory{caller: caller, chainID: chainID, address: factory, entryPoint: entryPoint}
}

// Address returns the factory contract address
func (f *Factory) Address() common.Address { return f.address }

// EntryPoint returns the EntryPoint address
func (f *Factory) EntryPoint() common.Address { return f.entryPoint }

// AccountAddress returns the counterfactual account address for admin.
func (f *Factory) AccountAddress(ctx context.Context, admin common.Address, data []byte) (common.Address, error) {
	input, err := EncodeGetAddress(admin, data)
	if err != nil {
		return common.Address{}, err
	}
	out, err := f.caller.CallContract(ctx, f.chainID, ethereum.CallMsg{To: &f.address, Data: input})
	if err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress: %w", err)
	}
	addr, err := decodeAddress("getAddress", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress: %w", err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("factory getAddress: zero address")
	}
	return addr, nil
}

// IsDeployed reports whether code exists at account
func (f *Factory) IsDeployed(ctx context.Context, account common.Address) (bool, error) {
	code, err := f.caller.CodeAt(ctx, f.chainID, account)
	if err != nil {
		return false, fmt.Errorf("get code: %w", err)
	}
	return len(code) > 0, nil
}

// Nonce returns EntryPoint.getNonce(sender, 0)
func (f *Factory) Nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	input, err := EncodeGetNonce(sender, nil)
	if err != nil {
		return nil, err
	}
	out, err := f.caller.CallContract(ctx, f.chainID, ethereum.CallMsg{To: &f.entryPoint, Data: input})
	if err != nil {
		return nil, fmt.Errorf("entrypoint getNonce: %w", err)
	}
	return decodeNonce(out)
}

// InitCode returns the initCode that deploys admin's account
func (f *Factory) InitCode(admin common.Address, data []byte) ([]byte, error) {
	return InitCode(f.address, admin, data)
}
