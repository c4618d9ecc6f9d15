package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// KeystoreManager manages the encrypted keystore directory for local wallets
type KeystoreManager struct {
	ks      *keystore.KeyStore
	dataDir string
}

// NewKeystoreManager creates a keystore under dataDir/keystore
func NewKeystoreManager(dataDir string) (*KeystoreManager, error) {
	keystoreDir := filepath.Join(dataDir, "keystore")
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}

	ks := keystore.NewKeyStore(keystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)

	return &KeystoreManager{
		ks:      ks,
		dataDir: dataDir,
	}, nil
}

// CreateAccount creates a new random account encrypted with password
func (km *KeystoreManager) CreateAccount(password string) (accounts.Account, error) {
	return km.ks.NewAccount(password)
}

// ImportKey imports a hex private key and encrypts it with the password
func (km *KeystoreManager) ImportKey(privateKeyHex string, password string) (accounts.Account, error) {
	signer, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return accounts.Account{}, err
	}
	defer signer.Lock()

	return km.importSigner(signer, password)
}

// ImportSigner stores the key behind an unlocked KeySigner, e.g. one derived
// from a mnemonic. Importing an address that already exists returns the
// existing account.
func (km *KeystoreManager) ImportSigner(signer *KeySigner, password string) (accounts.Account, error) {
	if acc, ok := km.find(signer.Address()); ok {
		return acc, nil
	}
	return km.importSigner(signer, password)
}

func (km *KeystoreManager) importSigner(signer *KeySigner, password string) (accounts.Account, error) {
	signer.mu.RLock()
	defer signer.mu.RUnlock()

	if signer.key == nil {
		return accounts.Account{}, ErrAccountLocked
	}
	return km.ks.ImportECDSA(signer.key, password)
}

// ListAccounts returns all accounts in the keystore
func (km *KeystoreManager) ListAccounts() []accounts.Account {
	return km.ks.Accounts()
}

func (km *KeystoreManager) find(address common.Address) (accounts.Account, bool) {
	for _, acc := range km.ks.Accounts() {
		if acc.Address == address {
			return acc, true
		}
	}
	return accounts.Account{}, false
}

// GetSigner decrypts the keystore entry for address and returns a signer for it
func (km *KeystoreManager) GetSigner(address common.Address, password string) (*KeySigner, error) {
	account, ok := km.find(address)
	if !ok {
		return nil, ErrAccountNotFound
	}

	keyJSON, err := os.ReadFile(account.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock account: %w", err)
	}

	return NewKeySigner(key.PrivateKey), nil
}
