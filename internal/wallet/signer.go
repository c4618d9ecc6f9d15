package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountLocked   = errors.New("account is locked")
	ErrInvalidKey      = errors.New("invalid private key")
)

// Signer is the interface for signing transactions and messages with
// locally held key material.
type Signer interface {
	// Address returns the Ethereum address of the signer
	Address() common.Address

	// SignTransaction signs a transaction with the given chain ID
	SignTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)

	// SignMessage signs an arbitrary message (EIP-191 personal sign)
	SignMessage(message []byte) ([]byte, error)

	// SignTypedData signs EIP-712 typed data
	SignTypedData(typedData apitypes.TypedData) ([]byte, error)

	// SignHash signs a raw 32-byte digest
	SignHash(hash []byte) ([]byte, error)
}

// KeySigner implements Signer over an in-memory ECDSA key. Keystore accounts,
// HD-derived keys and imported raw keys all end up as a KeySigner.
type KeySigner struct {
	// mu protects key from concurrent access. Prevents signing operations from
	// racing with Lock() which zeros the key material.
	mu      sync.RWMutex
	address common.Address
	key     *ecdsa.PrivateKey // nil when locked
}

// NewKeySigner wraps an ECDSA private key
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}
}

// ParsePrivateKey builds a signer from a hex private key, with or without 0x
func ParsePrivateKey(privateKeyHex string) (*KeySigner, error) {
	if len(privateKeyHex) >= 2 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewKeySigner(key), nil
}

// Address returns the address of the signer
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTransaction signs a transaction
func (s *KeySigner) SignTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.key == nil {
		return nil, ErrAccountLocked
	}

	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.key)
}

// SignMessage signs an arbitrary message using EIP-191 personal sign
func (s *KeySigner) SignMessage(message []byte) ([]byte, error) {
	// EIP-191 prefix prevents signed messages from being replayed as transactions.
	return s.sign(accounts.TextHash(message))
}

// SignTypedData signs EIP-712 typed data
func (s *KeySigner) SignTypedData(typedData apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return s.sign(digest)
}

// SignHash signs a 32-byte digest without any prefix
func (s *KeySigner) SignHash(hash []byte) ([]byte, error) {
	if len(hash) != common.HashLength {
		return nil, fmt.Errorf("hash must be %d bytes, got %d", common.HashLength, len(hash))
	}
	return s.sign(hash)
}

func (s *KeySigner) sign(hash []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.key == nil {
		return nil, ErrAccountLocked
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}

	// Transform V from crypto.Sign's 0/1 to 27/28 for web3.js/MetaMask compatibility.
	sig[64] += 27
	return sig, nil
}

// Locked reports whether the key material has been zeroed
func (s *KeySigner) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key == nil
}

// Lock zeros private key material from memory. Safe to call multiple times.
// After Lock(), all signing operations return ErrAccountLocked.
func (s *KeySigner) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		s.key.D.SetInt64(0)
		s.key = nil
	}
}

// RecoverAddress returns the signer of an EIP-191 message signature with V in {27,28}
func RecoverAddress(message, sig []byte) (common.Address, error) {
	return RecoverHashAddress(accounts.TextHash(message), sig)
}

// RecoverHashAddress returns the signer of a digest signature with V in {27,28}
func RecoverHashAddress(hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
