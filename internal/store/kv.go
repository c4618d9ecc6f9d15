// Package store persists session records and sealed wallet secrets.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("key not found")

// KV is a small byte-valued key-value store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns keys with the given prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Supported drivers
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Open opens the store for driver under dataDir.
func Open(driver, dataDir string) (KV, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	switch driver {
	case DriverSQLite, "":
		s, err := OpenSQLite(filepath.Join(dataDir, "walletkit.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverFile:
		f, err := OpenFile(filepath.Join(dataDir, "store.json"))
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}

// GetJSON decodes the value at key into v.
func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Put(ctx, key, raw)
}
