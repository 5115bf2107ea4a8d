// Package storage provides request log backends implementing
// requestlog.Storage.
//
// SQLiteStorage keeps every collection in one request_log table with a
// collection column. Either SQLite driver can be used: mattn/go-sqlite3
// ("sqlite3", needs cgo) or modernc.org/sqlite ("sqlite", pure Go). The
// schema is created on open.
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:        "data/requests.db",
//	    Driver:      storage.DriverPure,
//	    WALMode:     true,
//	    BusyTimeout: 5 * time.Second,
//	})
//
// MemoryStorage keeps entries in a map and is used in tests and when no
// database is configured.
package storage
