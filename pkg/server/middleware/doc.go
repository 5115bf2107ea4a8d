// Package middleware contains the HTTP middleware keygate installs in front
// of every route.
//
// The chain, outermost first:
//
//	RequestID   - X-Request-ID in, context and response
//	Logging     - one log line and one metrics observation per request
//	Recovery    - converts panics into 500 {"error": ...}
//
// Tracing and CORS are installed by the server package from their own
// packages.
package middleware
