package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LogMetrics tracks the request log.
//
// Metrics:
//   - keygate_log_writes_total: entry writes by outcome (written, failed, dropped)
//   - keygate_log_pruned_total: entries removed by retention
type LogMetrics struct {
	writesTotal *prometheus.CounterVec
	prunedTotal prometheus.Counter
}

// NewLogMetrics creates and registers request log metrics.
func NewLogMetrics(namespace string, registry *prometheus.Registry) *LogMetrics {
	lm := &LogMetrics{
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_writes_total",
				Help:      "Request log writes by outcome",
			},
			[]string{"outcome"},
		),
		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_pruned_total",
				Help:      "Request log entries removed by retention",
			},
		),
	}

	registry.MustRegister(lm.writesTotal, lm.prunedTotal)

	return lm
}

// ObserveWrite counts one write outcome.
func (lm *LogMetrics) ObserveWrite(outcome string) {
	lm.writesTotal.WithLabelValues(outcome).Inc()
}

// RecordPruned adds n pruned entries.
func (lm *LogMetrics) RecordPruned(n int64) {
	lm.prunedTotal.Add(float64(n))
}
