package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/requestlog/recorder"
	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/server/middleware"
)

// Evaluator authorizes a raw credential presented from origin.
// *auth.Authorizer implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, raw, origin string) auth.Verdict
}

// EntryRecorder persists request log entries. *recorder.Recorder
// implements it.
type EntryRecorder interface {
	Record(ctx context.Context, entry *requestlog.Entry)
}

// VerdictMetrics receives every verdict. *metrics.Collector implements it.
type VerdictMetrics interface {
	RecordVerdict(v auth.Verdict)
}

// Gate authorizes and logs requests before they reach a handler.
type Gate struct {
	evaluator    Evaluator
	recorder     EntryRecorder
	metrics      VerdictMetrics
	enforce      bool
	maxBodyBytes int64
	now          func() time.Time
	logger       *slog.Logger
}

// GateConfig contains the collaborators of a Gate. Recorder and Metrics
// may be nil.
type GateConfig struct {
	Evaluator    Evaluator
	Recorder     EntryRecorder
	Metrics      VerdictMetrics
	Enforce      bool
	MaxBodyBytes int64
}

// NewGate creates a Gate.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		evaluator:    cfg.Evaluator,
		recorder:     cfg.Recorder,
		metrics:      cfg.Metrics,
		enforce:      cfg.Enforce,
		maxBodyBytes: cfg.MaxBodyBytes,
		now:          time.Now,
		logger:       slog.Default().With("component", "server.gate"),
	}
}

// check captures r, evaluates its credential and records the request. r's
// body stays readable for the next handler.
func (g *Gate) check(r *http.Request) auth.Verdict {
	ctx := r.Context()
	req := requestlog.FromHTTP(r, g.maxBodyBytes)

	verdict := g.evaluator.Evaluate(ctx, req.Credential(), req.Origin())
	if g.metrics != nil {
		g.metrics.RecordVerdict(verdict)
	}

	if g.recorder != nil {
		g.recorder.Record(ctx, recorder.BuildEntry(req, verdict, r.URL.Path, g.now()))
	}

	g.logger.DebugContext(ctx, "request evaluated",
		"path", r.URL.Path,
		"authorized", verdict.Authorized,
		"keyless", verdict.KeylessEntry,
		"reason", verdict.Reason(),
	)

	return verdict
}

// Middleware gates next. Denied requests get 401 {"error": issue} when
// enforcing; otherwise every request passes with the verdict available
// through auth.VerdictFromContext.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verdict := g.check(r)
		if g.enforce && !verdict.Authorized {
			middleware.WriteError(w, http.StatusUnauthorized, verdict.Issue)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithVerdict(r.Context(), verdict)))
	})
}

// HandleAuthorize answers with the verdict as JSON. The status is 401 only
// when enforcing and the request was denied.
func (g *Gate) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	verdict := g.check(r)

	status := http.StatusOK
	if g.enforce && !verdict.Authorized {
		status = http.StatusUnauthorized
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(verdict)
}
