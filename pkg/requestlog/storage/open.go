package storage

import (
	"fmt"

	"mercator-hq/keygate/pkg/requestlog"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Open returns the storage backend named by backend. sqlite may be nil for
// the memory backend.
func Open(backend string, sqlite *SQLiteConfig) (requestlog.Storage, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case "", BackendSQLite:
		s, err := NewSQLiteStorage(sqlite)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported request log backend: %s", backend)
	}
}
