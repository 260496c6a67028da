package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)

	all := map[string]KV{
		BackendMemory: NewMemory(),
		BackendFile:   fs,
		BackendSQLite: db,
	}
	t.Cleanup(func() {
		for _, kv := range all {
			kv.Close()
		}
	})
	return all
}

func TestKV_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get(ctx, "comments:o/r#1:a.go")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Put(ctx, "comments:o/r#1:a.go", []byte(`[1]`)))
			require.NoError(t, kv.Put(ctx, "comments:o/r#1:a.go", []byte(`[1,2]`)))

			v, ok, err := kv.Get(ctx, "comments:o/r#1:a.go")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[1,2]`, string(v))

			require.NoError(t, kv.Delete(ctx, "comments:o/r#1:a.go"))
			require.NoError(t, kv.Delete(ctx, "comments:o/r#1:a.go"), "delete is idempotent")

			_, ok, err = kv.Get(ctx, "comments:o/r#1:a.go")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", buf))
	buf[0] = 'x'

	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
}

func TestSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, "k", []byte("v")))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestOpen(t *testing.T) {
	kv, err := Open("", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, kv)

	kv, err = Open(BackendFile, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, kv)

	_, err = Open("redis", "")
	assert.Error(t, err)

	_, err = Open(BackendFile, "")
	assert.Error(t, err)
}
