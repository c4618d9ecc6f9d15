package wallet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/tyler-smith/go-bip39"
)

// DefaultDerivationPath is the first account of the standard Ethereum BIP-44 path
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrInvalidPath     = errors.New("invalid derivation path")
)

// validWordCounts are the BIP-39 mnemonic lengths (128 to 256 bits of entropy)
var validWordCounts = map[int]bool{12: true, 15: true, 18: true, 21: true, 24: true}

// NormalizeMnemonic collapses whitespace and lowercases a mnemonic phrase
func NormalizeMnemonic(mnemonic string) string {
	return strings.ToLower(strings.Join(strings.Fields(mnemonic), " "))
}

// ValidateMnemonic checks word count, wordlist membership and checksum
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonic(mnemonic)
	words := strings.Fields(normalized)
	if !validWordCounts[len(words)] {
		return fmt.Errorf("%w: expected 12, 15, 18, 21 or 24 words, got %d", ErrInvalidMnemonic, len(words))
	}
	if !bip39.IsMnemonicValid(normalized) {
		return fmt.Errorf("%w: unknown word or bad checksum", ErrInvalidMnemonic)
	}
	return nil
}

// absolutePath is m followed by decimal components, ' marking hardened ones
var absolutePath = regexp.MustCompile(`^m(/[0-9]+'?)+$`)

// ValidatePath checks that path is an absolute BIP-32 derivation path
func ValidatePath(path string) error {
	_, err := parsePath(path)
	return err
}

// parsePath rejects relative paths, which accounts.ParseDerivationPath
// would append to the default Ethereum prefix
func parsePath(path string) (accounts.DerivationPath, error) {
	if !absolutePath.MatchString(path) {
		return nil, fmt.Errorf("%w: %q must look like m/44'/60'/0'/0/0", ErrInvalidPath, path)
	}
	derivation, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return derivation, nil
}

// NewMnemonic generates a fresh mnemonic with the given entropy size in bits
// (128 for 12 words, 256 for 24 words)
func NewMnemonic(bits int) (string, error) {
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// DeriveSigner derives the key at path from a BIP-39 mnemonic. The same
// mnemonic, passphrase and path always produce the same address.
func DeriveSigner(mnemonic, passphrase, path string) (*KeySigner, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}
	if path == "" {
		path = DefaultDerivationPath
	}
	derivation, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	seed, err := bip39.NewSeedWithErrorChecking(NormalizeMnemonic(mnemonic), passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	// The network params only affect serialization, never the derived key.
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	for _, index := range derivation {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child %d: %w", index, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}
	return NewKeySigner(priv.ToECDSA()), nil
}
