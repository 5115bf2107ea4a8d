package recorder

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/security/auth"
)

// undefinedValue stands in for a missing address source in the client
// address summary. Existing log documents use the same literal.
const undefinedValue = "undefined"

// BuildEntry assembles the log entry for a request. The body map is copied
// at the top level so redaction never reaches back into req.
func BuildEntry(req *requestlog.Request, verdict auth.Verdict, route string, now time.Time) *requestlog.Entry {
	body := make(map[string]any, len(req.Body))
	for k, v := range req.Body {
		body[k] = v
	}
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}

	return &requestlog.Entry{
		ID:    uuid.New().String(),
		Route: route,
		User:  verdict,
		IP:    ClientAddressSummary(req),
		Request: requestlog.RequestSnapshot{
			Body:    body,
			Headers: headers,
		},
		ReqTime: now,
	}
}

// ClientAddressSummary labels every candidate client address source:
//
//	cf: <cf-connecting-ip> xr: <x-real-ip> xf: <x-forwarded-for> ra: <peer>
//
// All four are always present; a missing source is written as "undefined".
// The result identifies a caller for investigation and is not a resolved IP.
func ClientAddressSummary(req *requestlog.Request) string {
	var b strings.Builder
	b.WriteString("cf: ")
	b.WriteString(headerOrUndefined(req, requestlog.HeaderCFConnectingIP))
	b.WriteString(" xr: ")
	b.WriteString(headerOrUndefined(req, requestlog.HeaderXRealIP))
	b.WriteString(" xf: ")
	b.WriteString(headerOrUndefined(req, requestlog.HeaderXForwardedFor))
	b.WriteString(" ra: ")
	if req.RemoteAddr == "" {
		b.WriteString(undefinedValue)
	} else {
		b.WriteString(req.RemoteAddr)
	}
	return b.String()
}

func headerOrUndefined(req *requestlog.Request, name string) string {
	v, ok := req.Headers[name]
	if !ok {
		return undefinedValue
	}
	return v
}
