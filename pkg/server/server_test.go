package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/keystore"
	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/requestlog/recorder"
	"mercator-hq/keygate/pkg/requestlog/storage"
	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/server/middleware"
	"mercator-hq/keygate/pkg/telemetry/health"
	"mercator-hq/keygate/pkg/telemetry/metrics"
)

// fakeEvaluator authorizes exactly one credential.
type fakeEvaluator struct {
	validKey string
	calls    []string
	mu       sync.Mutex
}

func (f *fakeEvaluator) Evaluate(_ context.Context, raw, origin string) auth.Verdict {
	f.mu.Lock()
	f.calls = append(f.calls, raw+"@"+origin)
	f.mu.Unlock()

	if raw == f.validKey {
		return auth.Verdict{Name: "alice", Authorized: true, Environment: "prod"}
	}
	return auth.Verdict{Name: auth.UnknownUser, Environment: "prod", Issue: auth.IssueKeyMismatch}
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []*requestlog.Entry
}

func (f *fakeRecorder) Record(_ context.Context, entry *requestlog.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func testConfig(upstream string, enforce bool) *config.Config {
	cfg := config.MinimalConfig()
	cfg.Server.UpstreamURL = upstream
	cfg.Auth.Enforce = enforce
	return cfg
}

func newTestHandler(t *testing.T, cfg *config.Config, deps Deps) http.Handler {
	t.Helper()
	srv, err := New(cfg, deps)
	require.NoError(t, err)
	return srv.httpServer.Handler
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestNew_RequiresEvaluator(t *testing.T) {
	_, err := New(config.MinimalConfig(), Deps{})
	assert.Error(t, err)
}

func TestNew_InvalidUpstream(t *testing.T) {
	_, err := New(testConfig("not a url", false), Deps{Evaluator: &fakeEvaluator{}})
	assert.Error(t, err)
}

func TestAuthorizeEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		enforce        bool
		body           string
		expectedStatus int
		authorized     bool
	}{
		{"valid key", true, `{"key":"s:good"}`, http.StatusOK, true},
		{"denied while enforcing", true, `{"key":"s:bad"}`, http.StatusUnauthorized, false},
		{"denied without enforcing", false, `{"key":"s:bad"}`, http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := &fakeEvaluator{validKey: "s:good"}
			rec := &fakeRecorder{}
			handler := newTestHandler(t, testConfig("", tt.enforce), Deps{Evaluator: eval, Recorder: rec})

			req := jsonRequest(http.MethodPost, AuthorizePath, tt.body)
			req.Header.Set("Origin", "https://app.example.com")
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			require.Equal(t, tt.expectedStatus, resp.Code)

			var verdict auth.Verdict
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&verdict))
			assert.Equal(t, tt.authorized, verdict.Authorized)

			require.Len(t, eval.calls, 1)
			assert.True(t, strings.HasSuffix(eval.calls[0], "@https://app.example.com"))

			require.Len(t, rec.entries, 1)
			assert.Equal(t, AuthorizePath, rec.entries[0].Route)
			assert.Equal(t, tt.authorized, rec.entries[0].User.Authorized)
		})
	}
}

func TestGatedProxy(t *testing.T) {
	var (
		mu       sync.Mutex
		received []*http.Request
		bodies   []string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		mu.Lock()
		received = append(received, r)
		bodies = append(bodies, buf.String())
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer upstream.Close()

	t.Run("enforcing denies with issue", func(t *testing.T) {
		handler := newTestHandler(t, testConfig(upstream.URL, true), Deps{Evaluator: &fakeEvaluator{validKey: "s:good"}})

		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, jsonRequest(http.MethodPost, "/api/items", `{"key":"s:bad"}`))

		require.Equal(t, http.StatusUnauthorized, resp.Code)
		var body middleware.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, auth.IssueKeyMismatch, body.Error)
	})

	t.Run("authorized request is forwarded with verdict headers", func(t *testing.T) {
		handler := newTestHandler(t, testConfig(upstream.URL, true), Deps{Evaluator: &fakeEvaluator{validKey: "s:good"}})

		req := jsonRequest(http.MethodPost, "/api/items?page=2", `{"key":"s:good","name":"x"}`)
		req.Header.Set(HeaderUser, "mallory")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		require.Equal(t, http.StatusAccepted, resp.Code)

		mu.Lock()
		defer mu.Unlock()
		got := received[len(received)-1]
		assert.Equal(t, "/api/items", got.URL.Path)
		assert.Equal(t, "page=2", got.URL.RawQuery)
		assert.Equal(t, "alice", got.Header.Get(HeaderUser))
		assert.Equal(t, "true", got.Header.Get(HeaderAuthorized))
		assert.Equal(t, "false", got.Header.Get(HeaderKeyless))
		assert.JSONEq(t, `{"key":"s:good","name":"x"}`, bodies[len(bodies)-1])
	})

	t.Run("annotating mode forwards denied requests", func(t *testing.T) {
		handler := newTestHandler(t, testConfig(upstream.URL, false), Deps{Evaluator: &fakeEvaluator{validKey: "s:good"}})

		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, jsonRequest(http.MethodGet, "/api/items", ""))

		require.Equal(t, http.StatusAccepted, resp.Code)

		mu.Lock()
		defer mu.Unlock()
		got := received[len(received)-1]
		assert.Equal(t, "false", got.Header.Get(HeaderAuthorized))
		assert.Equal(t, auth.UnknownUser, got.Header.Get(HeaderUser))
	})
}

func TestUpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	handler := newTestHandler(t, testConfig(url, false), Deps{Evaluator: &fakeEvaluator{}})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/anything", nil))

	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestNoUpstream_OtherPathsNotFound(t *testing.T) {
	eval := &fakeEvaluator{}
	handler := newTestHandler(t, testConfig("", true), Deps{Evaluator: eval})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/items", nil))

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Empty(t, eval.calls)
}

func TestUngatedEndpoints(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", true)
	eval := &fakeEvaluator{}
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	handler := newTestHandler(t, cfg, Deps{
		Evaluator: eval,
		Metrics:   collector,
		Health:    health.New(time.Second),
		Version:   health.NewVersionInfo("1.0.0", "abc", "today"),
	})

	for _, path := range []string{"/health", "/ready", "/version", "/metrics"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
	assert.Empty(t, eval.calls)
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestHandler(t, testConfig("", true), Deps{Evaluator: &fakeEvaluator{}})

	req := httptest.NewRequest(http.MethodOptions, AuthorizePath, nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.NotEmpty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}

// TestEndToEnd runs a request through the real authorizer, memory key
// store, recorder and storage.
func TestEndToEnd(t *testing.T) {
	keys := keystore.NewMemoryStore([]*auth.KeyRecord{
		{Key: "hashed(salt|secret)", User: "alice", Environments: []string{"prod"}},
	})
	authorizer := auth.NewAuthorizer(keys, auth.NewPolicy("prod", []string{"https://docs.example.com"}), &auth.Config{
		Hasher: hasherFunc(func(secret, salt string) (string, error) {
			return "hashed(" + salt + "|" + secret + ")", nil
		}),
	})

	store := storage.NewMemoryStorage()
	cfg := testConfig("", true)
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	rec := recorder.NewRecorder(store, &recorder.Config{
		Enabled:    true,
		Collection: "requests",
		Metrics:    collector,
	})
	defer rec.Close()
	handler := newTestHandler(t, cfg, Deps{Evaluator: authorizer, Recorder: rec, Metrics: collector})

	requests := []struct {
		body   string
		origin string
		status int
	}{
		{`{"key":"salt:secret"}`, "", http.StatusOK},
		{`{"key":"salt:wrong"}`, "", http.StatusUnauthorized},
		{`{}`, "https://docs.example.com", http.StatusOK},
	}
	for _, r := range requests {
		req := jsonRequest(http.MethodPost, AuthorizePath, r.body)
		if r.origin != "" {
			req.Header.Set("Origin", r.origin)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, r.status, resp.Code, r.body)
	}

	entries, err := store.Query(context.Background(), &requestlog.Query{Collection: "requests"})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var redacted, keptAsSent, keyless int
	for _, e := range entries {
		key, hasKey := e.Request.Body["key"]
		switch {
		case e.User.Authorized && e.User.KeylessEntry:
			keyless++
		case e.User.Authorized:
			assert.Equal(t, recorder.RedactedKey, key)
			assert.Equal(t, "alice", e.User.Name)
			redacted++
		default:
			require.True(t, hasKey, "denied entry lost its key field")
			assert.Equal(t, "salt:wrong", key)
			keptAsSent++
		}
	}
	assert.Equal(t, 1, redacted)
	assert.Equal(t, 1, keptAsSent)
	assert.Equal(t, 1, keyless)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, `keygate_verdicts_total{outcome="authorized",reason="key"} 1`)
	assert.Contains(t, body, `keygate_verdicts_total{outcome="denied",reason="key_mismatch"} 1`)
	assert.Contains(t, body, `keygate_verdicts_total{outcome="authorized",reason="keyless"} 1`)
	assert.Contains(t, body, `keygate_log_writes_total{outcome="written"} 3`)
}

type hasherFunc func(secret, salt string) (string, error)

func (f hasherFunc) Hash(secret, salt string) (string, error) { return f(secret, salt) }

func TestStartAndShutdown(t *testing.T) {
	cfg := testConfig("", false)
	cfg.Server.ListenAddress = "127.0.0.1:0"

	srv, err := New(cfg, Deps{Evaluator: &fakeEvaluator{}, Health: health.New(time.Second)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartTLS(t *testing.T) {
	// Borrow the httptest certificate so its client already trusts us.
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	defer ts.Close()

	cfg := testConfig("", false)
	cfg.Server.ListenAddress = "127.0.0.1:0"

	srv, err := New(cfg, Deps{
		Evaluator: &fakeEvaluator{},
		Health:    health.New(time.Second),
		TLS:       &tls.Config{Certificates: ts.TLS.Certificates, MinVersion: tls.VersionTLS12},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := ts.Client().Get("https://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, resp.TLS)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
