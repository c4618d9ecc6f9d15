package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const filePerms = 0600 // Owner read/write only

type fileData struct {
	Version int               `json:"version"`
	Entries map[string][]byte `json:"entries"`
}

// File is a KV kept in a single JSON document on disk.
type File struct {
	mu       sync.RWMutex
	filePath string
	data     *fileData
}

// OpenFile opens the JSON store at path, creating its directory.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	f := &File{
		filePath: path,
		data:     &fileData{Version: 1, Entries: make(map[string][]byte)},
	}
	if err := f.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	return f, nil
}

func (f *File) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.filePath)
	if err != nil {
		return err
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	// Entries is never nil, even for a hand-edited file
	if data.Entries == nil {
		data.Entries = make(map[string][]byte)
	}
	f.data = &data
	return nil
}

// save writes the store with a temp file and rename
func (f *File) save() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmpPath := f.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, raw, filePerms); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmpPath, f.filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save store file: %w", err)
	}
	return nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.data.Entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (f *File) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data.Entries[key] = append([]byte(nil), value...)
	return f.save()
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.data.Entries[key]; !ok {
		return nil
	}
	delete(f.data.Entries, key)
	return f.save()
}

func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0, len(f.data.Entries))
	for k := range f.data.Entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *File) Close() error { return nil }
