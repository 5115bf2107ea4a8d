package keystore

import (
	"fmt"
	"io"
	"time"

	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/telemetry/events"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQL    = "sql"
)

// Config selects and configures a key store backend.
type Config struct {
	Backend string

	// Path is the YAML key file for the file backend.
	Path string

	// Debounce delays reloads of the key file after a change. Zero keeps
	// the file store default.
	Debounce time.Duration

	// DSN is the SQLite database for the sql backend.
	DSN string

	// Keys seeds the memory backend.
	Keys []*auth.KeyRecord

	Observer events.Observer
}

// Store is a KeyStore that owns resources.
type Store interface {
	auth.KeyStore
	io.Closer
}

// Open builds the configured backend. When the file backend is selected the
// result is a *FileStore and can be type-asserted to start watching.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.Keys), nil
	case BackendFile:
		opts := []FileStoreOption{WithObserver(cfg.Observer)}
		if cfg.Debounce > 0 {
			opts = append(opts, WithDebounce(cfg.Debounce))
		}
		fs, err := NewFileStore(cfg.Path, opts...)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case BackendSQL:
		ss, err := OpenSQLStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return ss, nil
	default:
		return nil, fmt.Errorf("unsupported key store backend: %s", cfg.Backend)
	}
}
