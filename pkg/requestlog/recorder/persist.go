package recorder

import (
	"context"
	"log/slog"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/telemetry/events"
)

// Persist writes entry to sink. Authorized entries have their credential
// redacted first; denied entries are written as submitted so unrecognized
// keys stay visible for investigation.
//
// A sink failure is reported to observer and swallowed. Persist never
// retries and never returns an error. A nil entry is ignored.
func Persist(ctx context.Context, entry *requestlog.Entry, sink requestlog.Sink, collection string, observer events.Observer) {
	if observer == nil {
		observer = events.NewLogObserver(slog.Default().With("component", "requestlog.recorder"))
	}
	_, _ = persist(ctx, entry, sink, collection, observer)
}

// persist returns the stored id and whether the write succeeded.
func persist(ctx context.Context, entry *requestlog.Entry, sink requestlog.Sink, collection string, observer events.Observer) (string, bool) {
	if entry == nil {
		return "", false
	}

	if entry.User.Authorized {
		RedactCredential(entry)
	}

	id, err := sink.Append(ctx, collection, entry)
	if err != nil {
		observer.Observe(ctx, events.Event{
			Kind:      events.KindWriteFailed,
			Component: "requestlog.recorder",
			Err:       requestlog.NewRecorderError(entry.ID, err),
			Attrs: []slog.Attr{
				slog.String("collection", collection),
				slog.String("route", entry.Route),
			},
		})
		return "", false
	}

	return id, true
}
