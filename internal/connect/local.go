package connect

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yolodolo42/walletkit/internal/store"
	"github.com/yolodolo42/walletkit/internal/tx"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

// LocalMnemonicKey holds the sealed mnemonic of the password-protected
// local wallet
const LocalMnemonicKey = "local/mnemonic"

type localSession struct {
	signer  *wallet.KeySigner
	chain   ChainBackend
	chainID uint64
}

func (s *localSession) signTransaction(unsigned *types.Transaction) (*types.Transaction, error) {
	return s.signer.SignTransaction(unsigned, new(big.Int).SetUint64(s.chainID))
}

func (s *localSession) sendTransaction(ctx context.Context, from common.Address, req tx.Request) (common.Hash, error) {
	if s.chain == nil {
		return common.Hash{}, newError(KindUnavailable, ProviderLocal, "send transaction", errNoChain)
	}
	unsigned, _, err := tx.BuildUnsignedTx(ctx, s.chain, s.chainID, from, req)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := s.signTransaction(unsigned)
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.chain.SendTransaction(ctx, s.chainID, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast: %w", err)
	}
	return signed.Hash(), nil
}

func (s *localSession) close() {
	s.signer.Lock()
}

var errNoChain = errors.New("no chain client configured")

// connectLocal derives or unlocks the key in-process. The only I/O is the
// local store and keystore.
func (k *Kit) connectLocal(ctx context.Context, conn *Connection) (*Account, error) {
	if k.chain != nil && !k.chain.Supports(conn.chainID) {
		return nil, invalidf(conn.provider, "chain %d is not configured", conn.chainID)
	}

	signer, err := k.localSigner(ctx, conn)
	if err != nil {
		return nil, err
	}
	return newAccount(conn, signer.Address(), &localSession{
		signer:  signer,
		chain:   k.chain,
		chainID: conn.chainID,
	}), nil
}

func (k *Kit) localSigner(ctx context.Context, conn *Connection) (*wallet.KeySigner, error) {
	p := conn.provider
	switch {
	case conn.mnemonic != "":
		signer, err := wallet.DeriveSigner(conn.mnemonic, "", conn.derivationPath)
		if err != nil {
			return nil, newError(KindInvalid, p, "derive key", err)
		}
		if conn.password != "" {
			if err := k.sealMnemonic(ctx, conn.mnemonic, conn.password); err != nil {
				signer.Lock()
				return nil, err
			}
		}
		return signer, nil

	case conn.privateKey != "":
		signer, err := wallet.ParsePrivateKey(conn.privateKey)
		if err != nil {
			return nil, newError(KindInvalid, p, "parse key", err)
		}
		return signer, nil

	case conn.keystoreAcct != nil:
		if k.keystore == nil {
			return nil, newError(KindUnavailable, p, "unlock keystore", errors.New("no keystore configured"))
		}
		signer, err := k.keystore.GetSigner(*conn.keystoreAcct, conn.password)
		if err != nil {
			return nil, newError(KindInvalid, p, "unlock keystore", err)
		}
		return signer, nil
	}

	mnemonic, err := k.unsealMnemonic(ctx, conn.password)
	if err != nil {
		return nil, err
	}
	signer, err := wallet.DeriveSigner(mnemonic, "", conn.derivationPath)
	if err != nil {
		return nil, newError(KindInvalid, p, "derive key", err)
	}
	return signer, nil
}

// sealMnemonic stores mnemonic under password. An existing wallet is only
// accepted when the same mnemonic opens with the same password.
func (k *Kit) sealMnemonic(ctx context.Context, mnemonic, password string) error {
	exists, err := k.sealed.Exists(ctx, LocalMnemonicKey)
	if err != nil {
		return newError(KindUnavailable, ProviderLocal, "store mnemonic", err)
	}
	if !exists {
		if err := k.sealed.Put(ctx, LocalMnemonicKey, password, []byte(mnemonic)); err != nil {
			return newError(KindUnavailable, ProviderLocal, "store mnemonic", err)
		}
		return nil
	}

	raw, err := k.sealed.Get(ctx, LocalMnemonicKey, password)
	switch {
	case errors.Is(err, store.ErrWrongPassphrase):
		return newError(KindInvalid, ProviderLocal, "store mnemonic", errWalletSealed)
	case err != nil:
		return newError(KindUnavailable, ProviderLocal, "store mnemonic", err)
	case string(raw) != mnemonic:
		return newError(KindInvalid, ProviderLocal, "store mnemonic", errWalletSealed)
	}
	return nil
}

var errWalletSealed = errors.New("a different local wallet is already sealed under this data directory")

// unsealMnemonic opens the stored mnemonic, creating one on first use
func (k *Kit) unsealMnemonic(ctx context.Context, password string) (string, error) {
	raw, err := k.sealed.Get(ctx, LocalMnemonicKey, password)
	switch {
	case err == nil:
		return string(raw), nil
	case errors.Is(err, store.ErrWrongPassphrase):
		return "", newError(KindInvalid, ProviderLocal, "unlock wallet", err)
	case !errors.Is(err, store.ErrNotFound):
		return "", newError(KindUnavailable, ProviderLocal, "unlock wallet", err)
	}

	mnemonic, err := wallet.NewMnemonic(128)
	if err != nil {
		return "", newError(KindUnavailable, ProviderLocal, "create wallet", err)
	}
	if err := k.sealed.Put(ctx, LocalMnemonicKey, password, []byte(mnemonic)); err != nil {
		return "", newError(KindUnavailable, ProviderLocal, "create wallet", err)
	}
	k.logFor(ctx).Info("created local wallet")
	return mnemonic, nil
}

// ExportMnemonic returns the sealed local mnemonic
func (k *Kit) ExportMnemonic(ctx context.Context, password string) (string, error) {
	raw, err := k.sealed.Get(ctx, LocalMnemonicKey, password)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
