package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/security/auth"
)

var baseTime = time.Date(2024, 7, 26, 12, 0, 0, 0, time.UTC)

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }

func makeEntry(id, route, user string, authorized bool, offset time.Duration) *requestlog.Entry {
	return &requestlog.Entry{
		ID:    id,
		Route: route,
		User: auth.Verdict{
			Name:        user,
			Authorized:  authorized,
			Environment: "dev",
		},
		IP: "cf: undefined xr: undefined xf: undefined ra: 127.0.0.1:1234",
		Request: requestlog.RequestSnapshot{
			Body:    map[string]any{"key": "abc:def", "n": float64(1)},
			Headers: map[string]string{"origin": "https://trusted.example"},
		},
		ReqTime: baseTime.Add(offset),
	}
}

// backends returns every storage implementation under test.
func backends(t *testing.T) map[string]requestlog.Storage {
	t.Helper()

	out := map[string]requestlog.Storage{
		"memory": NewMemoryStorage(),
	}
	for _, driver := range []string{DriverCGO, DriverPure} {
		cfg := DefaultSQLiteConfig()
		cfg.Path = filepath.Join(t.TempDir(), driver+".db")
		cfg.Driver = driver
		s, err := NewSQLiteStorage(cfg)
		require.NoError(t, err, "driver %s", driver)
		out["sqlite-"+driver] = s
	}

	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func seed(t *testing.T, s requestlog.Storage) {
	t.Helper()
	ctx := context.Background()

	entries := []struct {
		coll  string
		entry *requestlog.Entry
	}{
		{"requests", makeEntry("e1", "/search", "alice", true, 0)},
		{"requests", makeEntry("e2", "/search", "unknown", false, time.Minute)},
		{"requests", makeEntry("e3", "/lookup", "alice", true, 2*time.Minute)},
		{"requests", makeEntry("e4", "/lookup", "bob", true, 3*time.Minute)},
		{"staging", makeEntry("e5", "/search", "alice", true, 4*time.Minute)},
	}
	entries[3].entry.User.KeylessEntry = true

	for _, e := range entries {
		id, err := s.Append(ctx, e.coll, e.entry)
		require.NoError(t, err)
		assert.Equal(t, e.entry.ID, id)
	}
}

func ids(entries []*requestlog.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestStorage_AppendAndQuery(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			all, err := s.Query(ctx, &requestlog.Query{})
			require.NoError(t, err)
			assert.Equal(t, []string{"e5", "e4", "e3", "e2", "e1"}, ids(all))

			got, err := s.Query(ctx, &requestlog.Query{Collection: "requests", SortOrder: "asc"})
			require.NoError(t, err)
			assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, ids(got))

			e := got[0]
			assert.Equal(t, "requests", e.Collection)
			assert.Equal(t, "/search", e.Route)
			assert.Equal(t, "alice", e.User.Name)
			assert.True(t, e.User.Authorized)
			assert.Equal(t, "dev", e.User.Environment)
			assert.Equal(t, "abc:def", e.Request.Body["key"])
			assert.Equal(t, float64(1), e.Request.Body["n"])
			assert.Equal(t, "https://trusted.example", e.Request.Headers["origin"])
			assert.True(t, baseTime.Equal(e.ReqTime))
		})
	}
}

func TestStorage_Filters(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			tests := []struct {
				name string
				q    requestlog.Query
				want []string
			}{
				{"route", requestlog.Query{Route: "/lookup"}, []string{"e4", "e3"}},
				{"user", requestlog.Query{User: "alice", Collection: "requests"}, []string{"e3", "e1"}},
				{"denied", requestlog.Query{Authorized: boolPtr(false)}, []string{"e2"}},
				{"keyless", requestlog.Query{Keyless: boolPtr(true)}, []string{"e4"}},
				{"environment", requestlog.Query{Environment: "prod"}, []string{}},
				{"time range", requestlog.Query{
					StartTime: timePtr(baseTime.Add(time.Minute)),
					EndTime:   timePtr(baseTime.Add(3 * time.Minute)),
				}, []string{"e4", "e3", "e2"}},
				{"limit offset", requestlog.Query{Limit: 2, Offset: 1}, []string{"e4", "e3"}},
				{"offset only", requestlog.Query{Offset: 3}, []string{"e2", "e1"}},
				{"offset past end", requestlog.Query{Offset: 10}, []string{}},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					q := tt.q
					got, err := s.Query(ctx, &q)
					require.NoError(t, err)
					assert.Equal(t, tt.want, ids(got))

					if q.Limit == 0 && q.Offset == 0 {
						n, err := s.Count(ctx, &q)
						require.NoError(t, err)
						assert.Equal(t, int64(len(tt.want)), n)
					}
				})
			}
		})
	}
}

func TestStorage_QueryStream(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			entriesCh, errCh, err := s.QueryStream(context.Background(), &requestlog.Query{SortOrder: "asc"})
			require.NoError(t, err)

			var got []*requestlog.Entry
			for e := range entriesCh {
				got = append(got, e)
			}
			require.NoError(t, <-errCh)
			assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e5"}, ids(got))
		})
	}
}

func TestStorage_QueryStreamCancelled(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 300; i++ {
				_, err := s.Append(ctx, "requests", makeEntry("", "/r", "u", true, time.Duration(i)*time.Second))
				require.NoError(t, err)
			}

			ctx, cancel := context.WithCancel(ctx)
			entriesCh, errCh, err := s.QueryStream(ctx, &requestlog.Query{})
			require.NoError(t, err)

			<-entriesCh
			cancel()
			for range entriesCh {
			}
			assert.ErrorIs(t, <-errCh, context.Canceled)
		})
	}
}

func TestStorage_Delete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			n, err := s.Delete(ctx, &requestlog.Query{EndTime: timePtr(baseTime.Add(time.Minute))})
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			left, err := s.Count(ctx, &requestlog.Query{})
			require.NoError(t, err)
			assert.Equal(t, int64(3), left)

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestStorage_GeneratesIDs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e := makeEntry("", "/r", "u", true, 0)
			id, err := s.Append(context.Background(), "", e)
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			got, err := s.Query(context.Background(), &requestlog.Query{Collection: requestlog.DefaultCollection})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, id, got[0].ID)
		})
	}
}

func TestMemoryStorage_AppendCopies(t *testing.T) {
	s := NewMemoryStorage()
	e := makeEntry("e1", "/r", "u", true, 0)
	_, err := s.Append(context.Background(), "requests", e)
	require.NoError(t, err)

	e.Request.Body["key"] = "mutated"

	got, err := s.Query(context.Background(), &requestlog.Query{})
	require.NoError(t, err)
	assert.Equal(t, "abc:def", got[0].Request.Body["key"])
}

func TestSQLiteStorage_UnknownDriver(t *testing.T) {
	_, err := NewSQLiteStorage(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "x.db"), Driver: "postgres"})
	var storageErr *requestlog.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "open", storageErr.Operation)
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "requests.db")

	s, err := NewSQLiteStorage(cfg)
	require.NoError(t, err)
	_, err = s.Append(context.Background(), "requests", makeEntry("e1", "/r", "u", true, 0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(cfg)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(context.Background(), &requestlog.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpen(t *testing.T) {
	s, err := Open(BackendMemory, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	_, err = Open("mongodb", nil)
	assert.Error(t, err)
}
