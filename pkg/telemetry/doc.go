// Package telemetry groups keygate's observability packages.
//
//   - logging: slog setup with secret redaction and request-scoped attributes
//   - metrics: Prometheus collectors for verdicts, log writes and HTTP traffic
//   - tracing: OpenTelemetry tracer and HTTP middleware
//   - health: liveness and readiness probes over the configured backends
//   - events: non-fatal operational events (hash failures, dropped entries)
//
// Every package is configured from the telemetry section of the keygate
// configuration file:
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
//	    path: /metrics
//	  tracing:
//	    enabled: false
//	    endpoint: localhost:4317
//	  health:
//	    liveness_path: /health
//	    readiness_path: /ready
package telemetry
