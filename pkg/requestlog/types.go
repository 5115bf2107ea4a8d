package requestlog

import (
	"context"
	"io"
	"time"

	"mercator-hq/keygate/pkg/security/auth"
)

// DefaultCollection is the collection entries are written to when none is
// configured.
const DefaultCollection = "requests"

// Entry is one request log document. The JSON layout matches the documents
// written by earlier deployments: route, user, ip, request, req_time.
type Entry struct {
	// ID is assigned by the recorder (UUID v4). Sinks may return their own.
	ID string `json:"id,omitempty"`

	// Collection is filled in by storage backends on read.
	Collection string `json:"collection,omitempty"`

	Route   string          `json:"route"`
	User    auth.Verdict    `json:"user"`
	IP      string          `json:"ip"`
	Request RequestSnapshot `json:"request"`
	ReqTime time.Time       `json:"req_time"`
}

// RequestSnapshot is the body and headers of a logged request.
type RequestSnapshot struct {
	Body    map[string]any    `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Clone returns a copy of e whose maps can be modified independently.
// Nested values inside Body are shared.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Request.Body != nil {
		c.Request.Body = make(map[string]any, len(e.Request.Body))
		for k, v := range e.Request.Body {
			c.Request.Body[k] = v
		}
	}
	if e.Request.Headers != nil {
		c.Request.Headers = make(map[string]string, len(e.Request.Headers))
		for k, v := range e.Request.Headers {
			c.Request.Headers[k] = v
		}
	}
	return &c
}

// Query filters request log entries.
type Query struct {
	// Collection limits the query to one collection. Empty matches all.
	Collection string `json:"collection,omitempty"`

	// Time range on ReqTime, both inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Route       string `json:"route,omitempty"`
	User        string `json:"user,omitempty"`
	Environment string `json:"api_env,omitempty"`
	Authorized  *bool  `json:"authorized,omitempty"`
	Keyless     *bool  `json:"keyless,omitempty"`

	// Pagination. Limit 0 means no limit.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder on req_time: "asc" or "desc" (default).
	SortOrder string `json:"sort_order,omitempty"`
}

// Sink durably appends entries. It returns the identifier of the stored
// entry.
type Sink interface {
	Append(ctx context.Context, collection string, entry *Entry) (string, error)
}

// Storage is a Sink that can also be read and pruned.
// Implementations must be safe for concurrent use.
type Storage interface {
	Sink

	// Query returns entries matching q. An empty slice means no matches.
	Query(ctx context.Context, q *Query) ([]*Entry, error)

	// QueryStream streams matching entries. Both channels are closed when
	// the query completes; at most one error is sent.
	QueryStream(ctx context.Context, q *Query) (<-chan *Entry, <-chan error, error)

	// Count returns the number of entries matching q.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes entries matching q and returns how many were removed.
	// Limit, Offset and SortOrder are ignored.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Exporter writes entries in some format.
type Exporter interface {
	Export(ctx context.Context, entries []*Entry, w io.Writer) error
	ExportStream(ctx context.Context, entries <-chan *Entry, w io.Writer) error
}
