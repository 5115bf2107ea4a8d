package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"mercator-hq/keygate/pkg/requestlog"
)

// MemoryStorage implements requestlog.Storage in memory. It is meant for
// tests and for running without a database; entries are lost on exit.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]*requestlog.Entry
}

// NewMemoryStorage creates an empty in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*requestlog.Entry),
	}
}

// Append implements requestlog.Sink. The entry is copied.
func (s *MemoryStorage) Append(ctx context.Context, collection string, entry *requestlog.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", requestlog.NewStorageError("memory", "append", err)
	}

	c := entry.Clone()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if collection == "" {
		collection = requestlog.DefaultCollection
	}
	c.Collection = collection

	s.mu.Lock()
	s.entries[c.ID] = c
	s.mu.Unlock()

	return c.ID, nil
}

// Query implements requestlog.Storage.
func (s *MemoryStorage) Query(ctx context.Context, q *requestlog.Query) ([]*requestlog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, requestlog.NewStorageError("memory", "query", err)
	}
	return s.matching(q, true), nil
}

// QueryStream implements requestlog.Storage.
func (s *MemoryStorage) QueryStream(ctx context.Context, q *requestlog.Query) (<-chan *requestlog.Entry, <-chan error, error) {
	entriesCh := make(chan *requestlog.Entry, 100)
	errCh := make(chan error, 1)

	matches := s.matching(q, true)

	go func() {
		defer close(entriesCh)
		defer close(errCh)

		for _, e := range matches {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case entriesCh <- e:
			}
		}
	}()

	return entriesCh, errCh, nil
}

// Count implements requestlog.Storage.
func (s *MemoryStorage) Count(ctx context.Context, q *requestlog.Query) (int64, error) {
	return int64(len(s.matching(q, false))), nil
}

// Delete implements requestlog.Storage.
func (s *MemoryStorage) Delete(ctx context.Context, q *requestlog.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.entries {
		if q.Matches(e) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Ping implements requestlog.Storage.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements requestlog.Storage.
func (s *MemoryStorage) Close() error {
	return nil
}

// matching returns sorted copies of the entries matching q, paginated when
// paginate is set.
func (s *MemoryStorage) matching(q *requestlog.Query, paginate bool) []*requestlog.Entry {
	s.mu.RLock()
	results := make([]*requestlog.Entry, 0)
	for _, e := range s.entries {
		if q.Matches(e) {
			results = append(results, e.Clone())
		}
	}
	s.mu.RUnlock()

	asc := q.SortOrder == "asc"
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.ReqTime.Equal(b.ReqTime) {
			if asc {
				return a.ReqTime.Before(b.ReqTime)
			}
			return a.ReqTime.After(b.ReqTime)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	if !paginate {
		return results
	}

	if q.Offset >= len(results) {
		return []*requestlog.Entry{}
	}
	results = results[q.Offset:]
	if q.Limit > 0 && q.Limit < len(results) {
		results = results[:q.Limit]
	}
	return results
}
