// Keygate authorizes API requests by salted key or by allowlisted origin
// and records every request it evaluates.
//
// Usage:
//
//	# Start the gate with configuration from a file and the environment
//	keygate run --config keygate.yaml
//
//	# Evaluate a credential against the configured key store
//	keygate check --key 'salt:secret' --origin https://app.example.com
//
//	# Inspect and maintain the request log
//	keygate logs query --user alice --since 24h
//	keygate logs export --format csv --output requests.csv
//	keygate logs prune --dry-run
//
//	# Show version information
//	keygate version
package main

import "os"

func main() {
	os.Exit(Execute())
}
