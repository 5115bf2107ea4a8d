package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/telemetry/events"
)

// Write outcomes reported to Metrics.
const (
	OutcomeWritten = "written"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

var (
	errBufferFull   = errors.New("recorder buffer full")
	errShuttingDown = errors.New("recorder shutting down")
)

// Metrics receives the outcome of each log write.
type Metrics interface {
	ObserveLogWrite(outcome string)
}

// Config contains configuration for the recorder.
type Config struct {
	// Enabled turns recording on. When false Record is a no-op.
	Enabled bool

	// Async hands entries to a background worker instead of writing inline.
	Async bool

	// AsyncBuffer is the size of the async write channel.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds each sink append.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// Collection is where entries are appended.
	Collection string

	// Observer receives write failures and dropped entries.
	Observer events.Observer

	Metrics Metrics
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		Async:        true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
		Collection:   requestlog.DefaultCollection,
	}
}

// Recorder persists request log entries without ever failing the request
// that produced them.
type Recorder struct {
	sink   requestlog.Sink
	config *Config
	logger *slog.Logger

	entries chan *requestlog.Entry
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRecorder creates a recorder writing to sink. In async mode a worker
// goroutine is started; call Close to drain it.
func NewRecorder(sink requestlog.Sink, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.Collection == "" {
		config.Collection = requestlog.DefaultCollection
	}

	logger := slog.Default().With("component", "requestlog.recorder")
	if config.Observer == nil {
		config.Observer = events.NewLogObserver(logger)
	}

	r := &Recorder{
		sink:   sink,
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}

	if config.Enabled && config.Async {
		r.entries = make(chan *requestlog.Entry, config.AsyncBuffer)
		r.wg.Add(1)
		go r.worker()
	}

	logger.Info("request recorder initialized",
		"enabled", config.Enabled,
		"async", config.Async,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"collection", config.Collection,
	)

	return r
}

// Collection returns the collection entries are written to.
func (r *Recorder) Collection() string {
	return r.config.Collection
}

// Record persists entry. In async mode it only enqueues; when the buffer is
// full or the recorder is closing the entry is dropped and reported.
func (r *Recorder) Record(ctx context.Context, entry *requestlog.Entry) {
	if !r.config.Enabled || entry == nil {
		return
	}

	if !r.config.Async {
		r.write(ctx, entry)
		return
	}

	select {
	case <-r.done:
		r.drop(ctx, entry, errShuttingDown)
		return
	default:
	}

	select {
	case r.entries <- entry:
	default:
		r.drop(ctx, entry, errBufferFull)
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.logger.Info("shutting down request recorder")
		close(r.done)
		r.wg.Wait()
		r.logger.Info("request recorder shut down complete")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.entries:
			r.write(context.Background(), entry)

		case <-r.done:
			r.logger.Info("draining request log channel before shutdown",
				"pending_count", len(r.entries),
			)
			for {
				select {
				case entry := <-r.entries:
					r.write(context.Background(), entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, entry *requestlog.Entry) {
	ctx, cancel := context.WithTimeout(ctx, r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	id, ok := persist(ctx, entry, r.sink, r.config.Collection, r.config.Observer)
	if !ok {
		r.observe(OutcomeFailed)
		return
	}
	r.observe(OutcomeWritten)

	duration := time.Since(start)
	r.logger.Debug("request logged",
		"id", id,
		"route", entry.Route,
		"authorized", entry.User.Authorized,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow request log write",
			"id", id,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

func (r *Recorder) drop(ctx context.Context, entry *requestlog.Entry, reason error) {
	r.observe(OutcomeDropped)
	r.config.Observer.Observe(ctx, events.Event{
		Kind:      events.KindEntryDropped,
		Component: "requestlog.recorder",
		Err:       requestlog.NewRecorderError(entry.ID, reason),
		Attrs:     []slog.Attr{slog.Int("channel_capacity", r.config.AsyncBuffer)},
	})
}

func (r *Recorder) observe(outcome string) {
	if r.config.Metrics != nil {
		r.config.Metrics.ObserveLogWrite(outcome)
	}
}
