// Package store provides the key-value backends that persist review
// state local to one reviewer.
package store

import (
	"context"
	"fmt"
)

// KV is a byte-oriented key-value store.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the backend named by kind. path is the directory for the
// file backend and the database file for sqlite; memory ignores it.
func Open(kind, path string) (KV, error) {
	switch kind {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return OpenSQLite(path)
	}
	return nil, fmt.Errorf("unknown store backend %q", kind)
}
