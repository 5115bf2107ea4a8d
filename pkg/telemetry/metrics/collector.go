package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/telemetry/events"
)

// otherRoute replaces route labels once the cardinality limit is reached.
const otherRoute = "other"

// Collector owns every Prometheus metric keygate exports. It implements
// auth.Metrics, recorder.Metrics and events.Observer so it can be handed
// straight to those components.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	authMetrics *AuthMetrics
	logMetrics  *LogMetrics
	httpMetrics *HTTPMetrics

	eventsTotal *prometheus.CounterVec

	routeLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered with registry. If registry
// is nil a new one is created. A disabled collector accepts every call and
// records nothing.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}

	c := &Collector{
		enabled:      config.Enabled(cfg.Enabled),
		registry:     registry,
		authMetrics:  NewAuthMetrics(namespace, registry),
		logMetrics:   NewLogMetrics(namespace, registry),
		httpMetrics:  NewHTTPMetrics(namespace, registry),
		routeLimiter: NewCardinalityLimiter(1000),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Diagnostic events by kind and component",
			},
			[]string{"kind", "component"},
		),
	}
	registry.MustRegister(c.eventsTotal)

	return c
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// RecordVerdict counts an authorization verdict.
func (c *Collector) RecordVerdict(v auth.Verdict) {
	if !c.enabled {
		return
	}
	c.authMetrics.RecordVerdict(v)
}

// ObserveHash implements auth.Metrics.
func (c *Collector) ObserveHash(d time.Duration, ok bool) {
	if !c.enabled {
		return
	}
	c.authMetrics.ObserveHash(d, ok)
}

// ObserveLogWrite implements recorder.Metrics.
func (c *Collector) ObserveLogWrite(outcome string) {
	if !c.enabled {
		return
	}
	c.logMetrics.ObserveWrite(outcome)
}

// RecordPruned counts entries removed by retention.
func (c *Collector) RecordPruned(n int64) {
	if !c.enabled || n <= 0 {
		return
	}
	c.logMetrics.RecordPruned(n)
}

// RecordHTTPRequest records a served request. route should be a route
// pattern, not the raw path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.enabled {
		return
	}
	if !c.routeLimiter.Allow(route) {
		route = otherRoute
	}
	c.httpMetrics.Record(method, route, strconv.Itoa(status), duration)
}

// Observe implements events.Observer.
func (c *Collector) Observe(_ context.Context, ev events.Event) {
	if !c.enabled {
		return
	}
	c.eventsTotal.WithLabelValues(string(ev.Kind), ev.Component).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already tracked or fits under the
// limit, tracking it in the latter case.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
