// Package events carries structured diagnostic events for failures that are
// handled locally and never returned to a caller: a hashing error that falls
// back to the keyless path, a key store outage that denies a request, a log
// write that is dropped.
//
// Components accept an Observer at construction. The default observer writes
// each event through log/slog; the metrics collector also implements Observer
// so operators can alert on event counts.
package events

import (
	"context"
	"log/slog"
)

// Kind identifies the failure an Event describes.
type Kind string

const (
	// KindHashFailed is emitted when a credential could not be hashed.
	// The request continues on the keyless path.
	KindHashFailed Kind = "hash_failed"

	// KindLookupFailed is emitted when the key store could not be queried.
	// The request is denied.
	KindLookupFailed Kind = "lookup_failed"

	// KindWriteFailed is emitted when a log entry could not be appended.
	KindWriteFailed Kind = "write_failed"

	// KindEntryDropped is emitted when the async recorder discards an entry
	// (buffer full or shutting down).
	KindEntryDropped Kind = "entry_dropped"

	// KindKeysReloadFailed is emitted when a watched key file could not be reloaded.
	KindKeysReloadFailed Kind = "keys_reload_failed"
)

// Event is a single diagnostic event.
type Event struct {
	Kind      Kind
	Component string
	Err       error

	// Attrs carries extra context. Never put credential material here.
	Attrs []slog.Attr
}

// Observer receives diagnostic events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f(ctx, ev).
func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Nop discards every event.
var Nop Observer = ObserverFunc(func(context.Context, Event) {})

// LogObserver writes events to a slog.Logger at error level.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns an observer writing to logger, or to slog.Default()
// when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Observe implements Observer.
func (o *LogObserver) Observe(ctx context.Context, ev Event) {
	attrs := make([]slog.Attr, 0, len(ev.Attrs)+3)
	attrs = append(attrs,
		slog.String("event", string(ev.Kind)),
		slog.String("component", ev.Component),
	)
	if ev.Err != nil {
		attrs = append(attrs, slog.String("error", ev.Err.Error()))
	}
	attrs = append(attrs, ev.Attrs...)
	o.logger.LogAttrs(ctx, slog.LevelError, "diagnostic event", attrs...)
}

// Multi fans an event out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(ctx context.Context, ev Event) {
		for _, o := range list {
			o.Observe(ctx, ev)
		}
	})
}

// Recorder collects events in memory. It is meant for tests.
type Recorder struct {
	ch chan Event
}

// NewRecorder returns a Recorder that buffers up to size events; further
// events are discarded.
func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

// Observe implements Observer.
func (r *Recorder) Observe(_ context.Context, ev Event) {
	select {
	case r.ch <- ev:
	default:
	}
}

// Events drains and returns the buffered events.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
