// Package server provides the keygate HTTP server.
//
// Every request passes RequestID, Logging and Recovery middleware, then
// optional tracing and CORS. Routes:
//
//	POST /v1/authorize     verdict for the request as JSON, request logged
//	GET  /health, /ready   liveness and readiness (paths configurable)
//	GET  /version          build information
//	GET  /metrics          Prometheus metrics when enabled
//	/*                     gated reverse proxy when server.upstream_url is set
//
// The gate reads the credential from the body's "key" field and the Origin
// header, evaluates them, counts the verdict and hands a log entry to the
// recorder. With auth.enforce set, denied requests get
//
//	401 {"error": "<issue>"}
//
// Otherwise requests always pass and handlers read the verdict with
// auth.VerdictFromContext. Forwarded requests carry the verdict in the
// X-Keygate-User, X-Keygate-Authorized, X-Keygate-Environment and
// X-Keygate-Keyless headers; inbound copies of those headers are dropped.
//
// # Basic Usage
//
//	srv, err := server.New(cfg, server.Deps{
//	    Evaluator: authorizer,
//	    Recorder:  rec,
//	    Metrics:   collector,
//	    Health:    checker,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is canceled and shutdown completes
package server
