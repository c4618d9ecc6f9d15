package wallet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/walletkit/internal/testutil"
)

func TestValidateMnemonic(t *testing.T) {
	t.Run("accepts 12 word mnemonic", func(t *testing.T) {
		require.NoError(t, ValidateMnemonic(testutil.TestMnemonic))
	})

	t.Run("tolerates extra whitespace and case", func(t *testing.T) {
		messy := "  TEST test   test test test test test test test test test JUNK "
		require.NoError(t, ValidateMnemonic(messy))
	})

	t.Run("rejects wrong word count", func(t *testing.T) {
		err := ValidateMnemonic("test test test")
		assert.ErrorIs(t, err, ErrInvalidMnemonic)
	})

	t.Run("rejects unknown word", func(t *testing.T) {
		err := ValidateMnemonic("test test test test test test test test test test test notaword")
		assert.ErrorIs(t, err, ErrInvalidMnemonic)
	})

	t.Run("rejects bad checksum", func(t *testing.T) {
		err := ValidateMnemonic("test test test test test test test test test test test test")
		assert.ErrorIs(t, err, ErrInvalidMnemonic)
	})
}

func TestNewMnemonic(t *testing.T) {
	t.Run("128 bits gives 12 valid words", func(t *testing.T) {
		m, err := NewMnemonic(128)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(m), 12)
		assert.NoError(t, ValidateMnemonic(m))
	})

	t.Run("256 bits gives 24 valid words", func(t *testing.T) {
		m, err := NewMnemonic(256)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(m), 24)
	})

	t.Run("rejects bad entropy size", func(t *testing.T) {
		_, err := NewMnemonic(100)
		require.Error(t, err)
	})
}

func TestDeriveSigner(t *testing.T) {
	t.Run("default path yields first account", func(t *testing.T) {
		signer, err := DeriveSigner(testutil.TestMnemonic, "", "")
		require.NoError(t, err)
		assert.Equal(t, testutil.TestAddress0, signer.Address().Hex())
	})

	t.Run("explicit index 1", func(t *testing.T) {
		signer, err := DeriveSigner(testutil.TestMnemonic, "", "m/44'/60'/0'/0/1")
		require.NoError(t, err)
		assert.Equal(t, testutil.TestAddress1, signer.Address().Hex())
	})

	t.Run("derivation is deterministic", func(t *testing.T) {
		a, err := DeriveSigner(testutil.TestMnemonic, "", DefaultDerivationPath)
		require.NoError(t, err)
		b, err := DeriveSigner(testutil.TestMnemonic, "", DefaultDerivationPath)
		require.NoError(t, err)
		assert.Equal(t, a.Address(), b.Address())
	})

	t.Run("passphrase changes the address", func(t *testing.T) {
		plain, err := DeriveSigner(testutil.TestMnemonic, "", "")
		require.NoError(t, err)
		salted, err := DeriveSigner(testutil.TestMnemonic, "extra", "")
		require.NoError(t, err)
		assert.NotEqual(t, plain.Address(), salted.Address())
	})

	t.Run("matches the raw private key", func(t *testing.T) {
		derived, err := DeriveSigner(testutil.TestMnemonic, "", "")
		require.NoError(t, err)
		raw, err := ParsePrivateKey(testutil.TestPrivateKey0)
		require.NoError(t, err)
		assert.Equal(t, raw.Address(), derived.Address())
	})

	t.Run("rejects invalid mnemonic", func(t *testing.T) {
		_, err := DeriveSigner("not a mnemonic", "", "")
		assert.ErrorIs(t, err, ErrInvalidMnemonic)
	})

	t.Run("rejects invalid path", func(t *testing.T) {
		_, err := DeriveSigner(testutil.TestMnemonic, "", "m/44'/x")
		assert.ErrorIs(t, err, ErrInvalidPath)
	})
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path  string
		valid bool
	}{
		{DefaultDerivationPath, true},
		{"m/44'/60'/0'/0/7", true},
		{"m/0", true},
		{"44/60", false},
		{"44'/60'/0'/0/0", false},
		{"m", false},
		{"m/", false},
		{"m/0x2c'", false},
		{" m/44'/60'/0'/0/0", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}

	t.Run("relative path is not derived", func(t *testing.T) {
		_, err := DeriveSigner(testutil.TestMnemonic, "", "0/1")
		assert.ErrorIs(t, err, ErrInvalidPath)
	})
}
