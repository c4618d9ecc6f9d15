package testutil

import (
	"os"
	"testing"
)

// Well-known development mnemonic (DO NOT use in production) and the
// addresses it yields on m/44'/60'/0'/0/{0,1}.
const (
	TestMnemonic = "test test test test test test test test test test test junk"
	TestAddress0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	TestAddress1 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	// TestPrivateKey0 is the private key behind TestAddress0
	TestPrivateKey0 = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

// TempDir creates a temporary directory for testing and registers cleanup
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "walletkit-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(dir) // Best-effort cleanup
	})
	return dir
}

// SetEnv sets an environment variable and restores it after the test
func SetEnv(t *testing.T, key, value string) {
	t.Helper()
	old, hadOld := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env var %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadOld {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}
