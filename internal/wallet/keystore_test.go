package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/walletkit/internal/testutil"
)

func TestNewKeystoreManager(t *testing.T) {
	t.Run("creates keystore directory", func(t *testing.T) {
		dir := testutil.TempDir(t)
		km, err := NewKeystoreManager(dir)
		require.NoError(t, err)
		require.NotNil(t, km)
	})

	t.Run("handles existing directory", func(t *testing.T) {
		dir := testutil.TempDir(t)

		km1, err := NewKeystoreManager(dir)
		require.NoError(t, err)
		require.NotNil(t, km1)

		km2, err := NewKeystoreManager(dir)
		require.NoError(t, err)
		require.NotNil(t, km2)
	})
}

func TestKeystoreManager_CreateAccount(t *testing.T) {
	t.Run("creates distinct accounts", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		acc1, err := km.CreateAccount("pass1")
		require.NoError(t, err)
		acc2, err := km.CreateAccount("pass2")
		require.NoError(t, err)

		assert.NotEqual(t, common.Address{}, acc1.Address)
		assert.NotEqual(t, acc1.Address, acc2.Address)
		assert.Len(t, km.ListAccounts(), 2)
	})
}

func TestKeystoreManager_ImportKey(t *testing.T) {
	t.Run("imports valid private key", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		account, err := km.ImportKey(testutil.TestPrivateKey0, "testpassword")
		require.NoError(t, err)
		assert.Equal(t, testutil.TestAddress0, account.Address.Hex())
	})

	t.Run("rejects invalid hex", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		_, err = km.ImportKey("not-a-valid-hex-key", "testpassword")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestKeystoreManager_ImportSigner(t *testing.T) {
	t.Run("stores derived key and unlocks it again", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		derived, err := DeriveSigner(testutil.TestMnemonic, "", "")
		require.NoError(t, err)

		account, err := km.ImportSigner(derived, "pw")
		require.NoError(t, err)
		assert.Equal(t, derived.Address(), account.Address)

		unlocked, err := km.GetSigner(account.Address, "pw")
		require.NoError(t, err)
		assert.Equal(t, derived.Address(), unlocked.Address())
		_, err = unlocked.SignMessage([]byte("hi"))
		require.NoError(t, err)
	})

	t.Run("importing twice returns the existing account", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		derived, err := DeriveSigner(testutil.TestMnemonic, "", "")
		require.NoError(t, err)

		first, err := km.ImportSigner(derived, "pw")
		require.NoError(t, err)
		second, err := km.ImportSigner(derived, "pw")
		require.NoError(t, err)
		assert.Equal(t, first.Address, second.Address)
		assert.Len(t, km.ListAccounts(), 1)
	})

	t.Run("locked signer cannot be imported", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		signer, err := ParsePrivateKey(testutil.TestPrivateKey0)
		require.NoError(t, err)
		signer.Lock()

		_, err = km.ImportSigner(signer, "pw")
		assert.ErrorIs(t, err, ErrAccountLocked)
	})
}

func TestKeystoreManager_GetSigner(t *testing.T) {
	t.Run("returns signer for valid account", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		account, err := km.CreateAccount("testpassword")
		require.NoError(t, err)

		signer, err := km.GetSigner(account.Address, "testpassword")
		require.NoError(t, err)
		assert.Equal(t, account.Address, signer.Address())
	})

	t.Run("returns error for wrong password", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		account, err := km.CreateAccount("correctpassword")
		require.NoError(t, err)

		_, err = km.GetSigner(account.Address, "wrongpassword")
		require.Error(t, err)
	})

	t.Run("returns error for non-existent address", func(t *testing.T) {
		km, err := NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)

		nonExistent := common.HexToAddress("0x1234567890123456789012345678901234567890")
		_, err = km.GetSigner(nonExistent, "anypassword")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}
