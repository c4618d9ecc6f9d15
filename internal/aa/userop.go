// Package aa builds EIP-4337 v0.6 user operations and counterfactual
// signatures for factory-deployed smart accounts.
package aa

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation represents an EIP-4337 v0.6 user operation.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte // first 20 bytes = paymaster address
	Signature            []byte
}

// rpcUserOperation is the bundler JSON form: every field hex encoded
type rpcUserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func orZero(v *big.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(big.Int))
	}
	return (*hexutil.Big)(v)
}

func fromHex(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToInt()
}

func (op UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                orZero(op.Nonce),
		InitCode:             nonNil(op.InitCode),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         orZero(op.CallGasLimit),
		VerificationGasLimit: orZero(op.VerificationGasLimit),
		PreVerificationGas:   orZero(op.PreVerificationGas),
		MaxFeePerGas:         orZero(op.MaxFeePerGas),
		MaxPriorityFeePerGas: orZero(op.MaxPriorityFeePerGas),
		PaymasterAndData:     nonNil(op.PaymasterAndData),
		Signature:            nonNil(op.Signature),
	})
}

func (op *UserOperation) UnmarshalJSON(b []byte) error {
	var r rpcUserOperation
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:               r.Sender,
		Nonce:                fromHex(r.Nonce),
		InitCode:             r.InitCode,
		CallData:             r.CallData,
		CallGasLimit:         fromHex(r.CallGasLimit),
		VerificationGasLimit: fromHex(r.VerificationGasLimit),
		PreVerificationGas:   fromHex(r.PreVerificationGas),
		MaxFeePerGas:         fromHex(r.MaxFeePerGas),
		MaxPriorityFeePerGas: fromHex(r.MaxPriorityFeePerGas),
		PaymasterAndData:     r.PaymasterAndData,
		Signature:            r.Signature,
	}
	return nil
}

// PaymasterAddress extracts the paymaster address from PaymasterAndData.
// Returns zero address if no paymaster.
func (op *UserOperation) PaymasterAddress() common.Address {
	if len(op.PaymasterAndData) < 20 {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:20])
}

// TotalGasLimit returns total gas required for the operation.
func (op *UserOperation) TotalGasLimit() *big.Int {
	total := new(big.Int)
	for _, g := range []*big.Int{op.CallGasLimit, op.VerificationGasLimit, op.PreVerificationGas} {
		if g != nil {
			total.Add(total, g)
		}
	}
	return total
}

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	packArgs = abi.Arguments{
		{Type: addressT}, {Type: uint256T}, {Type: bytes32T}, {Type: bytes32T},
		{Type: uint256T}, {Type: uint256T}, {Type: uint256T}, {Type: uint256T}, {Type: uint256T},
		{Type: bytes32T},
	}
	hashArgs = abi.Arguments{{Type: bytes32T}, {Type: addressT}, {Type: uint256T}}
)

// Hash returns the v0.6 userOpHash the account signs:
// keccak(abi.encode(keccak(pack(op)), entryPoint, chainId)).
// The signature field is not covered.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := packArgs.Pack(
		op.Sender,
		bigOrZero(op.Nonce),
		keccak(op.InitCode),
		keccak(op.CallData),
		bigOrZero(op.CallGasLimit),
		bigOrZero(op.VerificationGasLimit),
		bigOrZero(op.PreVerificationGas),
		bigOrZero(op.MaxFeePerGas),
		bigOrZero(op.MaxPriorityFeePerGas),
		keccak(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, err
	}

	outer, err := hashArgs.Pack(keccak(packed), entryPoint, bigOrZero(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(outer), nil
}

func keccak(b []byte) [32]byte {
	return crypto.Keccak256Hash(b)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// UserOpReceipt is the subset of eth_getUserOperationReceipt we read.
type UserOpReceipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce"`
	Success       bool           `json:"success"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Reason        string         `json:"reason,omitempty"`
	Receipt       struct {
		TransactionHash common.Hash `json:"transactionHash"`
	} `json:"receipt"`
}
