// Package recorder turns an authorized or denied request into a request log
// entry and persists it.
//
// BuildEntry captures the route, the verdict, a client address summary and
// the request body and headers. Persist redacts the credential of authorized
// requests and appends the entry to a requestlog.Sink:
//
//	entry := recorder.BuildEntry(req, verdict, "/v1/search", time.Now())
//	recorder.Persist(ctx, entry, store, "requests", observer)
//
// Persist never returns an error. A failed append is reported to the
// events.Observer and the entry is lost; there is no retry.
//
// Recorder wraps Persist for request handlers. In async mode entries go
// through a bounded channel to one background worker so the request path
// never waits on storage. A full buffer drops the entry. Close drains the
// channel before returning.
package recorder
