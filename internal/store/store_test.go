package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// keep scrypt fast in tests
	scryptN = 1 << 10
}

func openStores(t *testing.T) map[string]KV {
	t.Helper()

	sq, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	f, err := OpenFile(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)

	return map[string]KV{"sqlite": sq, "file": f}
}

func TestKV(t *testing.T) {
	ctx := context.Background()

	for name, kv := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing key", func(t *testing.T) {
				_, err := kv.Get(ctx, "session/metamask")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("put get overwrite", func(t *testing.T) {
				require.NoError(t, kv.Put(ctx, "session/metamask", []byte("one")))
				require.NoError(t, kv.Put(ctx, "session/metamask", []byte("two")))
				got, err := kv.Get(ctx, "session/metamask")
				require.NoError(t, err)
				assert.Equal(t, []byte("two"), got)
			})

			t.Run("keys by prefix", func(t *testing.T) {
				require.NoError(t, kv.Put(ctx, "session/magic", []byte("x")))
				require.NoError(t, kv.Put(ctx, "local/mnemonic", []byte("y")))
				require.NoError(t, kv.Put(ctx, "session_other", []byte("z")))

				keys, err := kv.Keys(ctx, "session/")
				require.NoError(t, err)
				assert.Equal(t, []string{"session/magic", "session/metamask"}, keys)
			})

			t.Run("prefix match is exact", func(t *testing.T) {
				require.NoError(t, kv.Put(ctx, "Session/Upper", []byte("u")))
				require.NoError(t, kv.Put(ctx, "cli/a%b_c", []byte("w")))
				require.NoError(t, kv.Put(ctx, "cli/aXbYc", []byte("w")))

				keys, err := kv.Keys(ctx, "Session/")
				require.NoError(t, err)
				assert.Equal(t, []string{"Session/Upper"}, keys)

				keys, err = kv.Keys(ctx, "session/")
				require.NoError(t, err)
				assert.NotContains(t, keys, "Session/Upper")

				keys, err = kv.Keys(ctx, "cli/a%b_")
				require.NoError(t, err)
				assert.Equal(t, []string{"cli/a%b_c"}, keys)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				require.NoError(t, kv.Delete(ctx, "session/magic"))
				require.NoError(t, kv.Delete(ctx, "session/magic"))
				_, err := kv.Get(ctx, "session/magic")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("json helpers", func(t *testing.T) {
				type rec struct {
					Provider string `json:"provider"`
					ChainID  uint64 `json:"chainId"`
				}
				require.NoError(t, PutJSON(ctx, kv, "session/walletconnect", rec{"walletconnect", 8453}))
				var got rec
				require.NoError(t, GetJSON(ctx, kv, "session/walletconnect", &got))
				assert.Equal(t, rec{"walletconnect", 8453}, got)
			})
		})
	}
}

func TestFile_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	ctx := context.Background()

	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Put(ctx, "k", []byte("v")))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	kv, err := Open(DriverSQLite, dir)
	require.NoError(t, err)
	require.NoError(t, kv.Close())
	_, err = os.Stat(filepath.Join(dir, "walletkit.db"))
	assert.NoError(t, err)

	_, err = Open("redis", dir)
	assert.Error(t, err)
}

func TestSealed(t *testing.T) {
	ctx := context.Background()
	kv, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer kv.Close()
	s := NewSealed(kv)

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "local/mnemonic", "hunter2", []byte("test test junk")))
		got, err := s.Get(ctx, "local/mnemonic", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, "test test junk", string(got))

		raw, err := kv.Get(ctx, "local/mnemonic")
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "junk")
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := s.Get(ctx, "local/mnemonic", "wrong")
		assert.ErrorIs(t, err, ErrWrongPassphrase)
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := s.Exists(ctx, "local/mnemonic")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Exists(ctx, "local/other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty passphrase and truncated blob", func(t *testing.T) {
		_, err := Seal("", []byte("x"))
		assert.Error(t, err)
		_, err = Unseal("pw", []byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrWrongPassphrase)
	})

	t.Run("salt makes blobs differ", func(t *testing.T) {
		a, err := Seal("pw", []byte("same"))
		require.NoError(t, err)
		b, err := Seal("pw", []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestJournal_WritesJSONLAndPermissions(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	require.NoError(t, err)
	t.Cleanup(j.Close)

	j.Record(Event{Type: EventConnectStarted, AttemptID: "a1", Provider: "magic"})
	j.Record(Event{Type: EventConnected, AttemptID: "a1", Provider: "magic", ChainID: 8453,
		Detail: map[string]any{"email": "p@example.com", "otp": "123456"}})

	st, err := os.Stat(j.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	b, err := os.ReadFile(j.Path())
	require.NoError(t, err)
	require.Contains(t, string(b), `"type":"connect_started"`)
	require.Contains(t, string(b), `***REDACTED***`)
	require.NotContains(t, string(b), "123456")

	events, err := ReadJournal(j.Path(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventConnected, events[0].Type)
	assert.NotEmpty(t, events[0].TS)
}

func TestJournal_NilIsNoop(t *testing.T) {
	var j *Journal
	j.Record(Event{Type: EventSigned})
	j.Close()
}

func TestRedactJSON(t *testing.T) {
	got := RedactJSON(`{"password":"pw","nested":{"mnemonic":"m","keep":1},"arr":[{"private_key":"k"}]}`)
	require.Contains(t, got, `"password":"***REDACTED***"`)
	require.Contains(t, got, `"mnemonic":"***REDACTED***"`)
	require.Contains(t, got, `"private_key":"***REDACTED***"`)
	require.Contains(t, got, `"keep":1`)

	assert.Equal(t, "not json", RedactJSON("not json"))
}
