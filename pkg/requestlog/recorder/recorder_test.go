package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/telemetry/events"
)

// captureSink records a copy of every entry it receives.
type captureSink struct {
	mu      sync.Mutex
	entries []*requestlog.Entry
	colls   []string
	err     error
	block   chan struct{}
}

func (s *captureSink) Append(_ context.Context, collection string, e *requestlog.Entry) (string, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.entries = append(s.entries, e.Clone())
	s.colls = append(s.colls, collection)
	return e.ID, nil
}

func (s *captureSink) snapshot() []*requestlog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*requestlog.Entry(nil), s.entries...)
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) ObserveLogWrite(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[outcome]++
}

func (m *countingMetrics) get(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

func testRequest() *requestlog.Request {
	return &requestlog.Request{
		Body: map[string]any{"key": "abc:def", "query": "weather"},
		Headers: map[string]string{
			"origin":           "https://trusted.example",
			"x-forwarded-for":  "203.0.113.9, 10.0.0.1",
			"cf-connecting-ip": "203.0.113.9",
		},
		RemoteAddr: "10.0.0.1:53211",
	}
}

func TestClientAddressSummary(t *testing.T) {
	tests := []struct {
		name string
		req  *requestlog.Request
		want string
	}{
		{
			name: "all sources",
			req: &requestlog.Request{
				Headers: map[string]string{
					"cf-connecting-ip": "1.1.1.1",
					"x-real-ip":        "2.2.2.2",
					"x-forwarded-for":  "3.3.3.3",
				},
				RemoteAddr: "4.4.4.4:80",
			},
			want: "cf: 1.1.1.1 xr: 2.2.2.2 xf: 3.3.3.3 ra: 4.4.4.4:80",
		},
		{
			name: "only peer",
			req:  &requestlog.Request{RemoteAddr: "4.4.4.4:80"},
			want: "cf: undefined xr: undefined xf: undefined ra: 4.4.4.4:80",
		},
		{
			name: "nothing",
			req:  &requestlog.Request{},
			want: "cf: undefined xr: undefined xf: undefined ra: undefined",
		},
		{
			name: "empty header is kept empty",
			req: &requestlog.Request{
				Headers:    map[string]string{"x-real-ip": ""},
				RemoteAddr: "4.4.4.4:80",
			},
			want: "cf: undefined xr:  xf: undefined ra: 4.4.4.4:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientAddressSummary(tt.req))
		})
	}
}

func TestBuildEntry(t *testing.T) {
	req := testRequest()
	verdict := auth.Verdict{Name: "alice", Authorized: true, Environment: "dev"}
	now := time.Date(2024, 7, 26, 12, 0, 0, 0, time.UTC)

	entry := BuildEntry(req, verdict, "/v1/search", now)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "/v1/search", entry.Route)
	assert.Equal(t, verdict, entry.User)
	assert.Equal(t, now, entry.ReqTime)
	assert.Equal(t, "cf: 203.0.113.9 xr: undefined xf: 203.0.113.9, 10.0.0.1 ra: 10.0.0.1:53211", entry.IP)
	assert.Equal(t, "abc:def", entry.Request.Body["key"])
	assert.Equal(t, "https://trusted.example", entry.Request.Headers["origin"])

	// Redacting the entry leaves the captured request alone.
	RedactCredential(entry)
	assert.Equal(t, "abc:def", req.Body["key"])
}

func TestPersist_AuthorizedIsRedacted(t *testing.T) {
	sink := &captureSink{}
	entry := BuildEntry(testRequest(), auth.Verdict{Name: "alice", Authorized: true}, "/r", time.Now())

	Persist(context.Background(), entry, sink, "requests", events.Nop)

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, RedactedKey, got[0].Request.Body["key"])
	assert.Equal(t, "weather", got[0].Request.Body["query"])
	assert.Equal(t, []string{"requests"}, sink.colls)

	for _, v := range got[0].Request.Body {
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, "abc:def")
		}
	}
}

func TestPersist_AuthorizedWithoutKeyGetsMarker(t *testing.T) {
	sink := &captureSink{}
	req := &requestlog.Request{Body: map[string]any{}}
	entry := BuildEntry(req, auth.Verdict{Authorized: true, KeylessEntry: true}, "/r", time.Now())

	Persist(context.Background(), entry, sink, "requests", events.Nop)

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, RedactedKey, got[0].Request.Body["key"])
}

func TestPersist_DeniedIsUnmodified(t *testing.T) {
	sink := &captureSink{}
	entry := BuildEntry(testRequest(), auth.Verdict{Name: auth.UnknownUser, Issue: auth.IssueKeyMismatch}, "/r", time.Now())

	Persist(context.Background(), entry, sink, "requests", events.Nop)

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "abc:def", got[0].Request.Body["key"])
}

func TestPersist_SinkFailureIsSwallowed(t *testing.T) {
	sinkErr := errors.New("connection reset")
	sink := &captureSink{err: sinkErr}
	rec := events.NewRecorder(4)
	entry := BuildEntry(testRequest(), auth.Verdict{Authorized: true}, "/r", time.Now())

	assert.NotPanics(t, func() {
		Persist(context.Background(), entry, sink, "requests", rec)
	})

	evs := rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.KindWriteFailed, evs[0].Kind)
	assert.ErrorIs(t, evs[0].Err, sinkErr)

	var recErr *requestlog.RecorderError
	require.ErrorAs(t, evs[0].Err, &recErr)
	assert.Equal(t, entry.ID, recErr.EntryID)
}

func TestPersist_NilEntry(t *testing.T) {
	sink := &captureSink{}
	Persist(context.Background(), nil, sink, "requests", nil)
	assert.Empty(t, sink.snapshot())
}

func TestRecorder_Sync(t *testing.T) {
	sink := &captureSink{}
	metrics := &countingMetrics{}
	r := NewRecorder(sink, &Config{
		Enabled:    true,
		Async:      false,
		Collection: "audit",
		Observer:   events.Nop,
		Metrics:    metrics,
	})
	defer r.Close()

	r.Record(context.Background(), BuildEntry(testRequest(), auth.Verdict{Authorized: true}, "/r", time.Now()))

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, RedactedKey, got[0].Request.Body["key"])
	assert.Equal(t, []string{"audit"}, sink.colls)
	assert.Equal(t, 1, metrics.get(OutcomeWritten))
}

func TestRecorder_AsyncDrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.AsyncBuffer = 100
	cfg.Observer = events.Nop
	r := NewRecorder(sink, cfg)

	for i := 0; i < 50; i++ {
		r.Record(context.Background(), BuildEntry(testRequest(), auth.Verdict{}, "/r", time.Now()))
	}
	require.NoError(t, r.Close())

	assert.Len(t, sink.snapshot(), 50)
	assert.Equal(t, requestlog.DefaultCollection, r.Collection())
}

func TestRecorder_FullBufferDrops(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	rec := events.NewRecorder(16)
	metrics := &countingMetrics{}
	r := NewRecorder(sink, &Config{
		Enabled:     true,
		Async:       true,
		AsyncBuffer: 1,
		Observer:    rec,
		Metrics:     metrics,
	})

	// The worker takes the first entry and blocks in the sink, the second
	// fills the buffer, the rest are dropped.
	for i := 0; i < 5; i++ {
		r.Record(context.Background(), BuildEntry(testRequest(), auth.Verdict{}, "/r", time.Now()))
		time.Sleep(5 * time.Millisecond)
	}

	close(sink.block)
	require.NoError(t, r.Close())

	assert.GreaterOrEqual(t, metrics.get(OutcomeDropped), 1)
	assert.Equal(t, 5, metrics.get(OutcomeDropped)+metrics.get(OutcomeWritten))

	dropped := 0
	for _, ev := range rec.Events() {
		if ev.Kind == events.KindEntryDropped {
			dropped++
			assert.True(t, strings.Contains(ev.Err.Error(), "buffer full"))
		}
	}
	assert.Equal(t, metrics.get(OutcomeDropped), dropped)
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	sink := &captureSink{}
	rec := events.NewRecorder(4)
	cfg := DefaultConfig()
	cfg.Observer = rec
	r := NewRecorder(sink, cfg)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	r.Record(context.Background(), BuildEntry(testRequest(), auth.Verdict{}, "/r", time.Now()))

	assert.Empty(t, sink.snapshot())
	evs := rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.KindEntryDropped, evs[0].Kind)
}

func TestRecorder_Disabled(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, &Config{Enabled: false})
	r.Record(context.Background(), BuildEntry(testRequest(), auth.Verdict{}, "/r", time.Now()))
	require.NoError(t, r.Close())
	assert.Empty(t, sink.snapshot())
}
