package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/security/auth"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is human-readable output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected text or json)", s)
	}
}

// Formatter formats command output.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{Indent: true}
	}
	return &TextFormatter{}
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes data to writer in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// TextFormatter renders verdicts and log entries as aligned columns. Other
// values are printed with %v.
type TextFormatter struct{}

// FormatTo writes data to writer in text format.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	switch v := data.(type) {
	case auth.Verdict:
		return writeVerdict(w, v)
	case []*requestlog.Entry:
		return writeEntries(w, v)
	default:
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}
}

func writeVerdict(w io.Writer, v auth.Verdict) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "authorized:\t%s\n", strconv.FormatBool(v.Authorized))
	fmt.Fprintf(tw, "user:\t%s\n", v.Name)
	fmt.Fprintf(tw, "environment:\t%s\n", v.Environment)
	if v.KeylessEntry {
		fmt.Fprintf(tw, "keyless:\ttrue\n")
	}
	if v.Issue != "" {
		fmt.Fprintf(tw, "issue:\t%s\n", v.Issue)
	}
	return tw.Flush()
}

func writeEntries(w io.Writer, entries []*requestlog.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tID\tROUTE\tUSER\tAUTHORIZED\tISSUE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			e.ReqTime.UTC().Format(time.RFC3339),
			e.ID,
			e.Route,
			e.User.Name,
			e.User.Authorized,
			e.User.Issue,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d entries\n", len(entries))
	return err
}
