package connect

import (
	"fmt"
	"strings"
)

// ProviderID identifies a wallet provider
type ProviderID string

const (
	ProviderLocal         ProviderID = "local"
	ProviderMetaMask      ProviderID = "metamask"
	ProviderWalletConnect ProviderID = "walletconnect"
	ProviderSmartWallet   ProviderID = "smartwallet"
	ProviderMagic         ProviderID = "magic"
	ProviderHyperplay     ProviderID = "hyperplay"
	ProviderInjected      ProviderID = "injected"
)

// AllProviders lists the built-in providers in display order
func AllProviders() []ProviderID {
	return []ProviderID{
		ProviderLocal,
		ProviderMetaMask,
		ProviderWalletConnect,
		ProviderMagic,
		ProviderHyperplay,
		ProviderInjected,
		ProviderSmartWallet,
	}
}

var providerAliases = map[string]ProviderID{
	"localhdwallet":  ProviderLocal,
	"localwallet":    ProviderLocal,
	"local-hd":       ProviderLocal,
	"wallet-connect": ProviderWalletConnect,
	"smart":          ProviderSmartWallet,
	"smart-wallet":   ProviderSmartWallet,
	"browser":        ProviderInjected,
}

// ParseProviderID accepts canonical IDs and common aliases, case-insensitively.
func ParseProviderID(s string) (ProviderID, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, id := range AllProviders() {
		if string(id) == key {
			return id, nil
		}
	}
	if id, ok := providerAliases[key]; ok {
		return id, nil
	}
	return "", &Error{Kind: KindUnsupported, Provider: ProviderID(s), Op: "parse provider", Err: fmt.Errorf("unknown provider %q", s)}
}

// DisplayName returns a human-readable provider name
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderLocal:
		return "Local Wallet"
	case ProviderMetaMask:
		return "MetaMask"
	case ProviderWalletConnect:
		return "WalletConnect"
	case ProviderSmartWallet:
		return "Smart Wallet"
	case ProviderMagic:
		return "Magic (email)"
	case ProviderHyperplay:
		return "HyperPlay"
	case ProviderInjected:
		return "Browser Wallet"
	default:
		return string(p)
	}
}

// Resumable reports whether the provider persists a session record
func (p ProviderID) Resumable() bool {
	switch p {
	case ProviderWalletConnect, ProviderMetaMask, ProviderMagic:
		return true
	}
	return false
}

// Remote reports whether the provider is reached through a JSON-RPC bridge
func (p ProviderID) Remote() bool {
	switch p {
	case ProviderMetaMask, ProviderWalletConnect, ProviderMagic, ProviderHyperplay, ProviderInjected:
		return true
	}
	return false
}

// Known reports whether p is a built-in provider
func (p ProviderID) Known() bool {
	for _, id := range AllProviders() {
		if id == p {
			return true
		}
	}
	return false
}
