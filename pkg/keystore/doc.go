// Package keystore provides auth.KeyStore implementations.
//
// Three backends are available:
//
//   - MemoryStore keeps records in a map. Used for tests and for keys listed
//     inline in the configuration file.
//   - FileStore loads records from a YAML file and can reload it when the
//     file changes.
//   - SQLStore reads a "keys" table through GORM.
//
// Every backend matches on the exact hashed key. None of them creates or
// migrates schema; the key table and key files are owned by the tooling
// that issues keys.
package keystore
