package connect

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/walletkit/internal/store"
	"github.com/yolodolo42/walletkit/internal/testutil"
	"github.com/yolodolo42/walletkit/internal/tx"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

func TestLocalConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("mnemonic derives the known address", func(t *testing.T) {
		k, _ := newTestKit(t)
		acct, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithMnemonic(testutil.TestMnemonic)))
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testutil.TestAddress0), acct.Address())
		assert.Equal(t, BackendLocal, acct.Backend())
		assert.Equal(t, StateConnected, acct.State())
		assert.Same(t, acct, k.Active())
	})

	t.Run("derivation path selects the account", func(t *testing.T) {
		k, _ := newTestKit(t)
		acct, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1,
			WithMnemonic(testutil.TestMnemonic), WithDerivationPath("m/44'/60'/0'/0/1")))
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testutil.TestAddress1), acct.Address())
	})

	t.Run("private key", func(t *testing.T) {
		k, _ := newTestKit(t)
		acct, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithPrivateKey(testutil.TestPrivateKey0)))
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testutil.TestAddress0), acct.Address())
	})

	t.Run("unknown chain is invalid", func(t *testing.T) {
		k, _ := newTestKit(t)
		_, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 999, WithMnemonic(testutil.TestMnemonic)))
		assert.ErrorIs(t, err, ErrInvalidConnectionParameters)
		assert.Nil(t, k.Active())
	})

	t.Run("password creates then reopens the wallet", func(t *testing.T) {
		k, kv := newTestKit(t)
		first, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithPassword("correct horse")))
		require.NoError(t, err)

		exists, err := store.NewSealed(kv).Exists(ctx, LocalMnemonicKey)
		require.NoError(t, err)
		assert.True(t, exists)

		second, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithPassword("correct horse")))
		require.NoError(t, err)
		assert.Equal(t, first.Address(), second.Address())
		assert.Equal(t, StateDisconnected, first.State(), "previous account is released")

		mnemonic, err := k.ExportMnemonic(ctx, "correct horse")
		require.NoError(t, err)
		assert.NoError(t, wallet.ValidateMnemonic(mnemonic))

		_, err = k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithPassword("wrong")))
		assert.ErrorIs(t, err, ErrInvalidConnectionParameters)
	})

	t.Run("mnemonic with password is sealed", func(t *testing.T) {
		k, _ := newTestKit(t)
		_, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithMnemonic(testutil.TestMnemonic), WithPassword("pw")))
		require.NoError(t, err)

		acct, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithPassword("pw")))
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testutil.TestAddress0), acct.Address())
	})

	t.Run("sealing never replaces another wallet", func(t *testing.T) {
		k, _ := newTestKit(t)
		generated, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithPassword("pw1")))
		require.NoError(t, err)
		want, err := k.ExportMnemonic(ctx, "pw1")
		require.NoError(t, err)

		_, err = k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithMnemonic(testutil.TestMnemonic), WithPassword("pw2")))
		assert.ErrorIs(t, err, ErrInvalidConnectionParameters)
		_, err = k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithMnemonic(testutil.TestMnemonic), WithPassword("pw1")))
		assert.ErrorIs(t, err, ErrInvalidConnectionParameters)

		got, err := k.ExportMnemonic(ctx, "pw1")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		reopened, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithPassword("pw1")))
		require.NoError(t, err)
		assert.Equal(t, generated.Address(), reopened.Address())
	})

	t.Run("sealing the same mnemonic again is accepted", func(t *testing.T) {
		k, _ := newTestKit(t)
		conn := mustConnection(t, ProviderLocal, 1, WithMnemonic(testutil.TestMnemonic), WithPassword("pw"))
		_, err := k.Connect(ctx, conn)
		require.NoError(t, err)
		acct, err := k.Connect(ctx, conn)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testutil.TestAddress0), acct.Address())
	})

	t.Run("keystore account", func(t *testing.T) {
		ks, err := wallet.NewKeystoreManager(testutil.TempDir(t))
		require.NoError(t, err)
		imported, err := ks.ImportKey(testutil.TestPrivateKey0, "pw")
		require.NoError(t, err)

		k, _ := newTestKit(t, func(d *Deps) { d.Keystore = ks })
		acct, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithKeystoreAccount(imported.Address), WithPassword("pw")))
		require.NoError(t, err)
		assert.Equal(t, imported.Address, acct.Address())

		_, err = k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithKeystoreAccount(imported.Address), WithPassword("nope")))
		assert.ErrorIs(t, err, ErrInvalidConnectionParameters)
	})
}

func TestLocalAccount(t *testing.T) {
	ctx := context.Background()
	owner := common.HexToAddress(testutil.TestAddress0)

	connect := func(t *testing.T, chain *fakeChain) *Account {
		k, _ := newTestKit(t, withChain(chain))
		acct, err := k.Connect(ctx, mustConnection(t, ProviderLocal, 1, WithMnemonic(testutil.TestMnemonic)))
		require.NoError(t, err)
		return acct
	}

	t.Run("sign message recovers", func(t *testing.T) {
		acct := connect(t, newFakeChain(1))
		sig, err := acct.SignMessage(ctx, []byte("hello"))
		require.NoError(t, err)
		got, err := wallet.RecoverAddress([]byte("hello"), sig)
		require.NoError(t, err)
		assert.Equal(t, owner, got)
	})

	t.Run("sign typed data recovers", func(t *testing.T) {
		acct := connect(t, newFakeChain(1))
		td := accountMessage(1, testSmartAccount, common.Hash{1}.Bytes())
		sig, err := acct.SignTypedData(ctx, td)
		require.NoError(t, err)

		digest, _, err := apitypes.TypedDataAndHash(td)
		require.NoError(t, err)
		got, err := wallet.RecoverHashAddress(digest, sig)
		require.NoError(t, err)
		assert.Equal(t, owner, got)
	})

	t.Run("sign transaction", func(t *testing.T) {
		acct := connect(t, newFakeChain(1))
		to := common.HexToAddress(testutil.TestAddress1)
		unsigned := types.NewTx(&types.DynamicFeeTx{ChainID: big.NewInt(1), Nonce: 3, To: &to, Value: big.NewInt(1), Gas: 21000, GasFeeCap: big.NewInt(10), GasTipCap: big.NewInt(1)})
		signed, err := acct.SignTransaction(ctx, unsigned)
		require.NoError(t, err)
		from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
		require.NoError(t, err)
		assert.Equal(t, owner, from)

		_, err = acct.SignTransaction(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidConnectionParameters)
	})

	t.Run("send transaction broadcasts", func(t *testing.T) {
		chain := newFakeChain(1)
		chain.nonce = 9
		acct := connect(t, chain)

		to := common.HexToAddress(testutil.TestAddress1)
		hash, err := acct.SendTransaction(ctx, tx.Request{To: &to, Value: big.NewInt(1000)})
		require.NoError(t, err)
		require.Len(t, chain.sent, 1)
		sent := chain.sent[0]
		assert.Equal(t, sent.Hash(), hash)
		assert.Equal(t, uint64(9), sent.Nonce())
		assert.Equal(t, big.NewInt(22), sent.GasFeeCap())
	})

	t.Run("broadcast failure is a submission error", func(t *testing.T) {
		chain := newFakeChain(1)
		chain.sendErr = errors.New("nonce too low")
		acct := connect(t, chain)

		to := common.HexToAddress(testutil.TestAddress1)
		_, err := acct.SendTransaction(ctx, tx.Request{To: &to})
		assert.ErrorIs(t, err, ErrTransactionSubmissionFailed)
		assert.Contains(t, err.Error(), "nonce too low")
	})

	t.Run("disconnect is idempotent and locks", func(t *testing.T) {
		acct := connect(t, newFakeChain(1))
		require.NoError(t, acct.Disconnect(ctx))
		require.NoError(t, acct.Disconnect(ctx))

		assert.Equal(t, StateDisconnected, acct.State())
		assert.Equal(t, owner, acct.Address())
		assert.Nil(t, acct.kit.Active())

		_, err := acct.SignMessage(ctx, []byte("hi"))
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		to := common.HexToAddress(testutil.TestAddress1)
		_, err = acct.SendTransaction(ctx, tx.Request{To: &to})
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.True(t, acct.local.signer.Locked())
	})
}
