package connect

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		connecting bool
		fallback   Kind
		want       Kind
	}{
		{"rejected while connecting", errUserRejected, true, KindUnavailable, KindRejected},
		{"rejected after connect", errUserRejected, false, KindUnavailable, KindSignRejected},
		{"unauthorized", &walletError{code: codeUnauthorized}, false, KindSubmission, KindUnavailable},
		{"disconnected", &walletError{code: codeDisconnected}, false, KindSubmission, KindUnavailable},
		{"chain disconnected", &walletError{code: codeChainDisconnected}, true, KindRejected, KindUnavailable},
		{"unsupported method", &walletError{code: codeUnsupportedMethod}, false, KindUnavailable, KindNotSupported},
		{"method not found", &walletError{code: codeMethodNotFound}, false, KindUnavailable, KindNotSupported},
		{"deadline", fmt.Errorf("pair: %w", context.DeadlineExceeded), true, KindUnavailable, KindTimeout},
		{"cancel while connecting", context.Canceled, true, KindRejected, KindUnavailable},
		{"cancel after connect", context.Canceled, false, KindSubmission, KindUnavailable},
		{"unknown code", &walletError{code: -32000}, false, KindSubmission, KindSubmission},
		{"plain error", errors.New("boom"), false, KindUnavailable, KindUnavailable},
		{"already classified", newError(KindInvalid, ProviderLocal, "x", nil), false, KindSubmission, KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, ProviderMetaMask, "op", tt.connecting, tt.fallback)
			assert.Equal(t, tt.want, KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classify(nil, ProviderLocal, "op", true, KindUnavailable))
	})
}

func TestError(t *testing.T) {
	err := newError(KindRejected, ProviderWalletConnect, "pair", errors.New("user closed the modal"))
	assert.Equal(t, "walletconnect pair: connection_rejected: user closed the modal", err.Error())
	assert.ErrorIs(t, err, ErrConnectionRejected)
	assert.NotErrorIs(t, err, ErrConnectionTimeout)

	wrapped := fmt.Errorf("connect: %w", err)
	assert.ErrorIs(t, wrapped, ErrConnectionRejected)
	assert.Equal(t, KindRejected, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("x")))
}

func TestParseProviderID(t *testing.T) {
	tests := map[string]ProviderID{
		"local":          ProviderLocal,
		"LocalHdWallet":  ProviderLocal,
		"localwallet":    ProviderLocal,
		"MetaMask":       ProviderMetaMask,
		"WalletConnect":  ProviderWalletConnect,
		"wallet-connect": ProviderWalletConnect,
		"SmartWallet":    ProviderSmartWallet,
		"smart":          ProviderSmartWallet,
		" magic ":        ProviderMagic,
		"Hyperplay":      ProviderHyperplay,
		"injected":       ProviderInjected,
		"browser":        ProviderInjected,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseProviderID(in)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseProviderID("phantom")
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("capabilities", func(t *testing.T) {
		assert.True(t, ProviderWalletConnect.Resumable())
		assert.False(t, ProviderHyperplay.Resumable())
		assert.False(t, ProviderLocal.Remote())
		assert.True(t, ProviderInjected.Remote())
		assert.False(t, ProviderSmartWallet.Remote())
		assert.NotEmpty(t, ProviderMagic.DisplayName())
	})
}
