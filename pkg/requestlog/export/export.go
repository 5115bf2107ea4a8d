// Package export writes request log entries as JSON or CSV, either from a
// slice or streamed from requestlog.Storage.QueryStream.
package export

import (
	"fmt"

	"mercator-hq/keygate/pkg/requestlog"
)

// New returns the exporter for format ("json" or "csv").
func New(format string, pretty bool) (requestlog.Exporter, error) {
	switch format {
	case "json":
		return NewJSONExporter(pretty), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s (must be 'json' or 'csv')", format)
	}
}
