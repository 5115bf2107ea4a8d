package keystore

import (
	"context"
	"sync"

	"mercator-hq/keygate/pkg/security/auth"
)

// MemoryStore is an in-memory auth.KeyStore.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*auth.KeyRecord
}

// NewMemoryStore creates a store holding the given records.
func NewMemoryStore(records []*auth.KeyRecord) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(records)
	return s
}

// FindByHash implements auth.KeyStore.
func (s *MemoryStore) FindByHash(ctx context.Context, hashed string) (*auth.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.keys[hashed]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return cloneRecord(rec), nil
}

// Len returns the number of records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Replace swaps the whole record set atomically.
func (s *MemoryStore) Replace(records []*auth.KeyRecord) {
	keys := make(map[string]*auth.KeyRecord, len(records))
	for _, rec := range records {
		if rec == nil || rec.Key == "" {
			continue
		}
		keys[rec.Key] = cloneRecord(rec)
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

// Close implements Store. It is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneRecord(rec *auth.KeyRecord) *auth.KeyRecord {
	c := *rec
	if rec.Environments != nil {
		c.Environments = append([]string(nil), rec.Environments...)
	}
	if rec.Origins != nil {
		c.Origins = append([]string(nil), rec.Origins...)
	}
	return &c
}
