package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/requestlog/recorder"
	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/telemetry/events"
)

// Compile-time checks that the collector plugs into its consumers.
var (
	_ auth.Metrics     = (*Collector)(nil)
	_ recorder.Metrics = (*Collector)(nil)
	_ events.Observer  = (*Collector)(nil)
)

func testCollector(enabled bool) *Collector {
	return NewCollector(&config.MetricsConfig{Enabled: &enabled, Namespace: "test"}, prometheus.NewRegistry())
}

func TestCollector_RecordVerdict(t *testing.T) {
	c := testCollector(true)

	c.RecordVerdict(auth.Verdict{Name: "alice", Authorized: true})
	c.RecordVerdict(auth.Verdict{Name: auth.UnknownUser, Authorized: true, KeylessEntry: true})
	c.RecordVerdict(auth.Verdict{Name: auth.UnknownUser, Issue: auth.IssueKeyMismatch})
	c.RecordVerdict(auth.Verdict{Name: auth.UnknownUser, Issue: auth.IssueKeyMismatch})

	verdicts := c.authMetrics.verdictsTotal
	if got := testutil.ToFloat64(verdicts.WithLabelValues("authorized", auth.ReasonKey)); got != 1 {
		t.Errorf("authorized/key = %v, want 1", got)
	}
	if got := testutil.ToFloat64(verdicts.WithLabelValues("authorized", auth.ReasonKeyless)); got != 1 {
		t.Errorf("authorized/keyless = %v, want 1", got)
	}
	if got := testutil.ToFloat64(verdicts.WithLabelValues("denied", auth.ReasonKeyMismatch)); got != 2 {
		t.Errorf("denied/key_mismatch = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.authMetrics.keylessEntries); got != 1 {
		t.Errorf("keyless entries = %v, want 1", got)
	}
}

func TestCollector_ObserveHash(t *testing.T) {
	c := testCollector(true)

	c.ObserveHash(3*time.Millisecond, true)
	c.ObserveHash(time.Millisecond, false)

	if got := testutil.CollectAndCount(c.authMetrics.hashDuration); got != 2 {
		t.Errorf("hash duration series = %d, want 2", got)
	}
}

func TestCollector_LogWritesAndPruning(t *testing.T) {
	c := testCollector(true)

	c.ObserveLogWrite(recorder.OutcomeWritten)
	c.ObserveLogWrite(recorder.OutcomeWritten)
	c.ObserveLogWrite(recorder.OutcomeDropped)
	c.RecordPruned(5)
	c.RecordPruned(0)

	if got := testutil.ToFloat64(c.logMetrics.writesTotal.WithLabelValues(recorder.OutcomeWritten)); got != 2 {
		t.Errorf("written = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.logMetrics.writesTotal.WithLabelValues(recorder.OutcomeDropped)); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.logMetrics.prunedTotal); got != 5 {
		t.Errorf("pruned = %v, want 5", got)
	}
}

func TestCollector_ObserveEvents(t *testing.T) {
	c := testCollector(true)
	obs := events.Multi(events.Nop, c)

	obs.Observe(context.Background(), events.Event{
		Kind:      events.KindLookupFailed,
		Component: "auth",
		Err:       errors.New("store down"),
	})

	if got := testutil.ToFloat64(c.eventsTotal.WithLabelValues("lookup_failed", "auth")); got != 1 {
		t.Errorf("events = %v, want 1", got)
	}
}

func TestCollector_HTTPRouteCardinality(t *testing.T) {
	c := testCollector(true)
	c.routeLimiter = NewCardinalityLimiter(1)

	c.RecordHTTPRequest("POST", "/v1/authorize", 200, time.Millisecond)
	c.RecordHTTPRequest("GET", "/a/b/c", 401, time.Millisecond)

	if got := testutil.ToFloat64(c.httpMetrics.requestsTotal.WithLabelValues("POST", "/v1/authorize", "200")); got != 1 {
		t.Errorf("authorize requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.httpMetrics.requestsTotal.WithLabelValues("GET", otherRoute, "401")); got != 1 {
		t.Errorf("overflow route requests = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	c := testCollector(false)

	c.RecordVerdict(auth.Verdict{Authorized: true})
	c.ObserveLogWrite(recorder.OutcomeFailed)
	c.Observe(context.Background(), events.Event{Kind: events.KindWriteFailed})

	if c.Enabled() {
		t.Error("expected collector to be disabled")
	}
	if got := testutil.CollectAndCount(c.authMetrics.verdictsTotal); got != 0 {
		t.Errorf("disabled collector recorded %d verdict series", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := testCollector(true)
	c.RecordVerdict(auth.Verdict{Issue: auth.IssueEnvMismatch})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_verdicts_total{outcome="denied",reason="env_mismatch"} 1`) {
		t.Errorf("metrics output missing verdict counter:\n%s", rec.Body.String())
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") || !cl.Allow("a") {
		t.Error("expected first two label sets to be allowed")
	}
	if cl.Allow("c") {
		t.Error("expected third label set to be rejected")
	}
	if cl.Count() != 2 {
		t.Errorf("count = %d, want 2", cl.Count())
	}
}
