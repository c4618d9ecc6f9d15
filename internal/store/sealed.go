package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// ErrWrongPassphrase is returned when a sealed value cannot be opened.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted secret")

const saltLen = 16

// scrypt cost; tests lower scryptN
var (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Sealed stores values encrypted under a passphrase.
// Layout: salt | nonce | ciphertext.
type Sealed struct {
	kv KV
}

// NewSealed wraps kv
func NewSealed(kv KV) *Sealed {
	return &Sealed{kv: kv}
}

// Put seals plaintext under passphrase and stores it at key.
func (s *Sealed) Put(ctx context.Context, key, passphrase string, plaintext []byte) error {
	blob, err := Seal(passphrase, plaintext)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, key, blob)
}

// Get loads and opens the value at key.
func (s *Sealed) Get(ctx context.Context, key, passphrase string) ([]byte, error) {
	blob, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return Unseal(passphrase, blob)
}

// Exists reports whether key holds a sealed value
func (s *Sealed) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Seal encrypts plaintext with a key derived from passphrase.
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, saltLen+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, salt), nil
}

// Unseal reverses Seal.
func Unseal(passphrase string, blob []byte) ([]byte, error) {
	nonceLen := chacha20poly1305.NonceSizeX
	if len(blob) < saltLen+nonceLen+chacha20poly1305.Overhead {
		return nil, ErrWrongPassphrase
	}
	salt := blob[:saltLen]
	nonce := blob[saltLen : saltLen+nonceLen]

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, blob[saltLen+nonceLen:], salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
