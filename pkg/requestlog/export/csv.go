package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"mercator-hq/keygate/pkg/requestlog"
)

// CSVExporter writes one row per entry. Body and headers are embedded as
// JSON strings.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id", "collection", "route",
	"name", "authorized", "api_env", "issue", "keylessEntry",
	"ip", "body", "headers", "req_time",
}

// Export writes entries to w.
func (e *CSVExporter) Export(ctx context.Context, entries []*requestlog.Entry, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return requestlog.NewExportError("csv", len(entries), err)
		}
	}

	for _, entry := range entries {
		row, err := entryToRow(entry)
		if err != nil {
			return requestlog.NewExportError("csv", len(entries), err)
		}
		if err := writer.Write(row); err != nil {
			return requestlog.NewExportError("csv", len(entries), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return requestlog.NewExportError("csv", len(entries), err)
	}
	return nil
}

// ExportStream writes entries from a channel, flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, entries <-chan *requestlog.Entry, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return requestlog.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case entry, ok := <-entries:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return requestlog.NewExportError("csv", count, err)
				}
				return nil
			}

			row, err := entryToRow(entry)
			if err != nil {
				return requestlog.NewExportError("csv", count, err)
			}
			if err := writer.Write(row); err != nil {
				return requestlog.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return requestlog.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func entryToRow(entry *requestlog.Entry) ([]string, error) {
	body, err := json.Marshal(entry.Request.Body)
	if err != nil {
		return nil, err
	}
	headers, err := json.Marshal(entry.Request.Headers)
	if err != nil {
		return nil, err
	}

	reqTime := ""
	if !entry.ReqTime.IsZero() {
		reqTime = entry.ReqTime.UTC().Format(time.RFC3339Nano)
	}

	return []string{
		entry.ID,
		entry.Collection,
		entry.Route,
		entry.User.Name,
		strconv.FormatBool(entry.User.Authorized),
		entry.User.Environment,
		entry.User.Issue,
		strconv.FormatBool(entry.User.KeylessEntry),
		entry.IP,
		string(body),
		string(headers),
		reqTime,
	}, nil
}
