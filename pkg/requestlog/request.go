package requestlog

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Header names used to build the client address summary.
const (
	HeaderCFConnectingIP = "cf-connecting-ip"
	HeaderXRealIP        = "x-real-ip"
	HeaderXForwardedFor  = "x-forwarded-for"
	HeaderOrigin         = "origin"
)

// KeyField is the body field that carries the API credential.
const KeyField = "key"

// DefaultMaxBodyBytes caps how much of a request body is read for logging.
const DefaultMaxBodyBytes int64 = 1 << 20

// Request is the part of an inbound request the authorizer and recorder
// consume.
type Request struct {
	// Body is the decoded request body. Never nil.
	Body map[string]any

	// Headers uses lower-case names. Repeated headers are joined with ", ".
	Headers map[string]string

	// RemoteAddr is the transport peer address.
	RemoteAddr string
}

// Header returns the header value for a lower-case name.
func (r *Request) Header(name string) string {
	return r.Headers[name]
}

// Origin returns the Origin header.
func (r *Request) Origin() string {
	return r.Headers[HeaderOrigin]
}

// Credential returns the body's key field when it is a string.
func (r *Request) Credential() string {
	s, _ := r.Body[KeyField].(string)
	return s
}

// FromHTTP captures r for authorization and logging. The body is read up to
// maxBytes (DefaultMaxBodyBytes when <= 0) and r.Body is replaced so the
// request can still be forwarded.
//
// JSON objects and URL-encoded forms are decoded into Body; any other
// content leaves Body empty.
func FromHTTP(r *http.Request, maxBytes int64) *Request {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	req := &Request{
		Body:       map[string]any{},
		Headers:    make(map[string]string, len(r.Header)),
		RemoteAddr: r.RemoteAddr,
	}

	for name, values := range r.Header {
		req.Headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	if r.Host != "" {
		if _, ok := req.Headers["host"]; !ok {
			req.Headers["host"] = r.Host
		}
	}

	if r.Body == nil || r.Body == http.NoBody {
		return req
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	r.Body = readCloser{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}
	if err != nil || len(data) == 0 {
		return req
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		decodeForm(data, req.Body)
	default:
		var body map[string]any
		if json.Unmarshal(data, &body) == nil && body != nil {
			req.Body = body
		}
	}

	return req
}

type readCloser struct {
	io.Reader
	io.Closer
}
