package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/keygate/pkg/security/auth"
)

// AuthMetrics tracks authorization outcomes.
//
// Metrics:
//   - keygate_verdicts_total: verdicts by outcome and reason
//   - keygate_keyless_entries_total: requests admitted without a key
//   - keygate_hash_duration_seconds: credential hashing latency
type AuthMetrics struct {
	verdictsTotal  *prometheus.CounterVec
	keylessEntries prometheus.Counter
	hashDuration   *prometheus.HistogramVec
}

// NewAuthMetrics creates and registers authorization metrics.
func NewAuthMetrics(namespace string, registry *prometheus.Registry) *AuthMetrics {
	am := &AuthMetrics{
		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Authorization verdicts by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		keylessEntries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "keyless_entries_total",
				Help:      "Requests authorized by origin without a key",
			},
		),
		hashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "hash_duration_seconds",
				Help:      "Time spent hashing presented credentials",
				// bcrypt cost 4 to 14
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(am.verdictsTotal, am.keylessEntries, am.hashDuration)

	return am
}

// RecordVerdict counts v under its outcome and reason.
func (am *AuthMetrics) RecordVerdict(v auth.Verdict) {
	outcome := "denied"
	if v.Authorized {
		outcome = "authorized"
	}
	am.verdictsTotal.WithLabelValues(outcome, v.Reason()).Inc()

	if v.Authorized && v.KeylessEntry {
		am.keylessEntries.Inc()
	}
}

// ObserveHash records one hashing attempt.
func (am *AuthMetrics) ObserveHash(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	am.hashDuration.WithLabelValues(result).Observe(d.Seconds())
}
