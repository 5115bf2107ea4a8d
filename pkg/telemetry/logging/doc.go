// Package logging configures log/slog for keygate.
//
// New returns a JSON or text logger whose handler masks credentials and
// adds request and trace identifiers from the context:
//
//	logger, err := logging.Setup(logging.Config{Level: "info", Format: "json"})
//
//	slog.Default().With("component", "server").InfoContext(ctx, "request gated",
//	    "route", "/v1/authorize",
//	    "key", raw, // logged as "***"
//	)
//
// Values under the keys key, api_key, authorization, password, secret and
// token are always masked. bcrypt hashes and bearer tokens are scrubbed
// from any other string value.
package logging
