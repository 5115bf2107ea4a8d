// Package tracing provides OpenTelemetry tracing for keygate.
//
// New installs a global tracer provider exporting to an OTLP gRPC
// collector. The authorizer starts its spans through otel.Tracer, so they
// join the server span created by Middleware:
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	router.Use(tracer.Middleware)
//
// W3C Trace Context headers are honoured on incoming requests and written
// on requests forwarded upstream.
package tracing
