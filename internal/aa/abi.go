package aa

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EntryPointV06 is the canonical EIP-4337 v0.6 EntryPoint deployment.
var EntryPointV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

const factoryABIJSON = `[
	{"name":"getAddress","type":"function","stateMutability":"view",
	 "inputs":[{"name":"admin","type":"address"},{"name":"data","type":"bytes"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"name":"createAccount","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"admin","type":"address"},{"name":"data","type":"bytes"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

const accountABIJSON = `[
	{"name":"execute","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"calldata","type":"bytes"}],
	 "outputs":[]}
]`

const entryPointABIJSON = `[
	{"name":"getNonce","type":"function","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`

var (
	factoryABI    = mustParseABI(factoryABIJSON)
	accountABI    = mustParseABI(accountABIJSON)
	entryPointABI = mustParseABI(entryPointABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("aa: bad abi: %v", err))
	}
	return parsed
}

// EncodeGetAddress encodes factory.getAddress(admin, data)
func EncodeGetAddress(admin common.Address, data []byte) ([]byte, error) {
	return factoryABI.Pack("getAddress", admin, nonNil(data))
}

// EncodeCreateAccount encodes factory.createAccount(admin, data)
func EncodeCreateAccount(admin common.Address, data []byte) ([]byte, error) {
	return factoryABI.Pack("createAccount", admin, nonNil(data))
}

// EncodeExecute encodes account.execute(target, value, calldata)
func EncodeExecute(target common.Address, value *big.Int, calldata []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	return accountABI.Pack("execute", target, value, nonNil(calldata))
}

// EncodeGetNonce encodes entryPoint.getNonce(sender, key)
func EncodeGetNonce(sender common.Address, key *big.Int) ([]byte, error) {
	if key == nil {
		key = new(big.Int)
	}
	return entryPointABI.Pack("getNonce", sender, key)
}

func decodeAddress(method string, out []byte) (common.Address, error) {
	vals, err := factoryABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s output", method)
	}
	return addr, nil
}

func decodeNonce(out []byte) (*big.Int, error) {
	vals, err := entryPointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, err
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce output")
	}
	return n, nil
}

// InitCode is the factory address followed by createAccount calldata.
func InitCode(factory, admin common.Address, data []byte) ([]byte, error) {
	calldata, err := EncodeCreateAccount(admin, data)
	if err != nil {
		return nil, err
	}
	return append(factory.Bytes(), calldata...), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
