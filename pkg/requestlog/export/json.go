package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/keygate/pkg/requestlog"
)

// JSONExporter writes entries as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes entries to w as one JSON array, "[]" when empty.
func (e *JSONExporter) Export(ctx context.Context, entries []*requestlog.Entry, w io.Writer) error {
	if entries == nil {
		entries = []*requestlog.Entry{}
	}

	var (
		data []byte
		err  error
	)
	if e.Pretty {
		data, err = json.MarshalIndent(entries, "", "  ")
	} else {
		data, err = json.Marshal(entries)
	}
	if err != nil {
		return requestlog.NewExportError("json", len(entries), err)
	}

	if _, err := w.Write(data); err != nil {
		return requestlog.NewExportError("json", len(entries), err)
	}
	return nil
}

// ExportStream writes entries from a channel as a JSON array without
// holding them all in memory.
func (e *JSONExporter) ExportStream(ctx context.Context, entries <-chan *requestlog.Entry, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return requestlog.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case entry, ok := <-entries:
			if !ok {
				if e.Pretty && count > 0 {
					if _, err := io.WriteString(w, "\n"); err != nil {
						return requestlog.NewExportError("json", count, err)
					}
				}
				if _, err := io.WriteString(w, "]"); err != nil {
					return requestlog.NewExportError("json", count, err)
				}
				return nil
			}

			sep := ","
			if count == 0 {
				sep = ""
			}
			if e.Pretty {
				sep += "\n  "
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return requestlog.NewExportError("json", count, err)
			}

			data, err := e.marshal(entry)
			if err != nil {
				return requestlog.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return requestlog.NewExportError("json", count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) marshal(entry *requestlog.Entry) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(entry, "  ", "  ")
	}
	return json.Marshal(entry)
}
