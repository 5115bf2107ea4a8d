// Package metrics provides Prometheus metrics for keygate.
//
// A single Collector is created at startup and passed to the components
// that report through it:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	authorizer := auth.NewAuthorizer(store, policy, &auth.Config{
//		Metrics:  collector,
//		Observer: events.Multi(events.NewLogObserver(logger), collector),
//	})
//	rec := recorder.NewRecorder(sink, &recorder.Config{Metrics: collector})
//
//	mux.Handle("/metrics", collector.Handler())
//
// Verdicts are labelled by auth.Verdict.Reason rather than the issue text,
// which can contain request origins.
package metrics
