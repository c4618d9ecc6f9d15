package aa

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC6492MagicValue is the 32-byte suffix of a wrapped counterfactual signature.
var ERC6492MagicValue = common.FromHex("0x6492649264926492649264926492649264926492649264926492649264926492")

// ERC6492Signature holds the parts of a wrapped signature.
type ERC6492Signature struct {
	Factory         common.Address
	FactoryCalldata []byte
	InnerSignature  []byte
}

var erc6492Args = func() abi.Arguments {
	bytesT, _ := abi.NewType("bytes", "", nil)
	return abi.Arguments{{Type: addressT}, {Type: bytesT}, {Type: bytesT}}
}()

// WrapERC6492 wraps sig so verifiers can deploy the account before checking
// it: abi.encode(factory, factoryCalldata, sig) ++ magic.
func WrapERC6492(factory common.Address, factoryCalldata, sig []byte) ([]byte, error) {
	enc, err := erc6492Args.Pack(factory, nonNil(factoryCalldata), nonNil(sig))
	if err != nil {
		return nil, fmt.Errorf("encode erc6492: %w", err)
	}
	return append(enc, ERC6492MagicValue...), nil
}

// IsERC6492 reports whether sig carries the magic suffix
func IsERC6492(sig []byte) bool {
	return len(sig) >= 32 && bytes.Equal(sig[len(sig)-32:], ERC6492MagicValue)
}

// UnwrapERC6492 splits a wrapped signature. A plain signature comes back as
// the inner signature with a zero factory.
func UnwrapERC6492(sig []byte) (*ERC6492Signature, error) {
	if !IsERC6492(sig) {
		return &ERC6492Signature{InnerSignature: sig}, nil
	}
	vals, err := erc6492Args.Unpack(sig[:len(sig)-32])
	if err != nil {
		return nil, fmt.Errorf("decode erc6492: %w", err)
	}
	factory, ok1 := vals[0].(common.Address)
	calldata, ok2 := vals[1].([]byte)
	inner, ok3 := vals[2].([]byte)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("decode erc6492: unexpected types")
	}
	return &ERC6492Signature{Factory: factory, FactoryCalldata: calldata, InnerSignature: inner}, nil
}
