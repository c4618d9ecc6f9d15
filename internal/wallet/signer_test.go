package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/walletkit/internal/testutil"
)

func newTestSigner(t *testing.T) *KeySigner {
	t.Helper()
	signer, err := ParsePrivateKey(testutil.TestPrivateKey0)
	require.NoError(t, err)
	return signer
}

func testTypedData(verifying common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Mail": {
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Mail",
		Domain: apitypes.TypedDataDomain{
			Name:              "Test",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1),
			VerifyingContract: verifying.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"contents": "hello",
		},
	}
}

func TestParsePrivateKey(t *testing.T) {
	t.Run("parses with and without 0x", func(t *testing.T) {
		a, err := ParsePrivateKey(testutil.TestPrivateKey0)
		require.NoError(t, err)
		b, err := ParsePrivateKey("0x" + testutil.TestPrivateKey0)
		require.NoError(t, err)
		assert.Equal(t, testutil.TestAddress0, a.Address().Hex())
		assert.Equal(t, a.Address(), b.Address())
	})

	t.Run("rejects invalid hex", func(t *testing.T) {
		_, err := ParsePrivateKey("not-a-valid-hex-key")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("rejects short key", func(t *testing.T) {
		_, err := ParsePrivateKey("abcd1234")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestKeySigner_SignTransaction(t *testing.T) {
	t.Run("signs and recovers sender", func(t *testing.T) {
		signer := newTestSigner(t)

		tx := types.NewTx(&types.DynamicFeeTx{
			Nonce:     0,
			GasTipCap: big.NewInt(1_000_000_000),
			GasFeeCap: big.NewInt(2_000_000_000),
			Gas:       21000,
			To:        &common.Address{},
			Value:     big.NewInt(1000),
		})

		chainID := big.NewInt(8453)
		signed, err := signer.SignTransaction(tx, chainID)
		require.NoError(t, err)

		sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), sender)
		assert.Equal(t, chainID, signed.ChainId())
	})

	t.Run("returns error when locked", func(t *testing.T) {
		signer := newTestSigner(t)
		signer.Lock()

		tx := types.NewTransaction(0, common.Address{}, big.NewInt(1), 21000, big.NewInt(1), nil)
		_, err := signer.SignTransaction(tx, big.NewInt(1))
		assert.ErrorIs(t, err, ErrAccountLocked)
	})
}

func TestKeySigner_SignMessage(t *testing.T) {
	t.Run("signs with EIP-191 prefix and recovers", func(t *testing.T) {
		signer := newTestSigner(t)

		message := []byte("Hello, Ethereum!")
		sig, err := signer.SignMessage(message)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		assert.True(t, sig[64] == 27 || sig[64] == 28)

		recovered, err := RecoverAddress(message, sig)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), recovered)
	})

	t.Run("signs empty message", func(t *testing.T) {
		signer := newTestSigner(t)
		sig, err := signer.SignMessage([]byte{})
		require.NoError(t, err)
		require.Len(t, sig, 65)
	})

	t.Run("returns error when locked", func(t *testing.T) {
		signer := newTestSigner(t)
		signer.Lock()
		_, err := signer.SignMessage([]byte("test"))
		assert.ErrorIs(t, err, ErrAccountLocked)
	})
}

func TestKeySigner_SignTypedData(t *testing.T) {
	t.Run("signature recovers over EIP-712 digest", func(t *testing.T) {
		signer := newTestSigner(t)
		td := testTypedData(common.HexToAddress("0x1234567890123456789012345678901234567890"))

		sig, err := signer.SignTypedData(td)
		require.NoError(t, err)
		require.Len(t, sig, 65)

		digest, _, err := apitypes.TypedDataAndHash(td)
		require.NoError(t, err)
		recovered, err := RecoverHashAddress(digest, sig)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), recovered)
	})

	t.Run("rejects unknown primary type", func(t *testing.T) {
		signer := newTestSigner(t)
		td := testTypedData(common.Address{})
		td.PrimaryType = "Missing"
		_, err := signer.SignTypedData(td)
		require.Error(t, err)
	})
}

func TestKeySigner_SignHash(t *testing.T) {
	t.Run("signs raw digest", func(t *testing.T) {
		signer := newTestSigner(t)
		hash := crypto.Keccak256([]byte("digest"))
		sig, err := signer.SignHash(hash)
		require.NoError(t, err)

		recovered, err := RecoverHashAddress(hash, sig)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), recovered)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		signer := newTestSigner(t)
		_, err := signer.SignHash([]byte{1, 2, 3})
		require.Error(t, err)
	})
}

func TestKeySigner_Lock(t *testing.T) {
	t.Run("zeroes out private key", func(t *testing.T) {
		signer := newTestSigner(t)

		_, err := signer.SignMessage([]byte("test"))
		require.NoError(t, err)
		assert.False(t, signer.Locked())

		signer.Lock()
		assert.True(t, signer.Locked())

		_, err = signer.SignMessage([]byte("test"))
		assert.ErrorIs(t, err, ErrAccountLocked)
	})

	t.Run("can be called multiple times", func(t *testing.T) {
		signer := newTestSigner(t)
		signer.Lock()
		signer.Lock()
		signer.Lock()
	})

	t.Run("address survives lock", func(t *testing.T) {
		signer := newTestSigner(t)
		signer.Lock()
		assert.Equal(t, testutil.TestAddress0, signer.Address().Hex())
	})
}
