package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/keygate/pkg/telemetry/events"
)

// enforceKeyOrigins gates the per-key origin restriction. Key records carry
// an origin list, but the policy does not apply it yet.
const enforceKeyOrigins = false

// Metrics receives hash timings. *metrics.Collector implements it.
type Metrics interface {
	ObserveHash(d time.Duration, ok bool)
}

// Config holds the optional collaborators of an Authorizer.
type Config struct {
	// Hasher derives lookup hashes. Defaults to BcryptHasher.
	Hasher Hasher

	// Observer receives hashing and lookup failures. Defaults to logging
	// them through slog.
	Observer events.Observer

	// Metrics is optional.
	Metrics Metrics
}

// Authorizer evaluates requests against a KeyStore and a fixed Policy.
// It holds no per-request state and is safe for concurrent use.
type Authorizer struct {
	store    KeyStore
	policy   Policy
	hasher   Hasher
	observer events.Observer
	metrics  Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewAuthorizer creates an Authorizer. cfg may be nil.
func NewAuthorizer(store KeyStore, policy Policy, cfg *Config) *Authorizer {
	if cfg == nil {
		cfg = &Config{}
	}

	logger := slog.Default().With("component", "auth")

	a := &Authorizer{
		store:    store,
		policy:   policy,
		hasher:   cfg.Hasher,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("mercator-hq/keygate/auth"),
		logger:   logger,
	}
	if a.hasher == nil {
		a.hasher = BcryptHasher{}
	}
	if a.observer == nil {
		a.observer = events.NewLogObserver(logger)
	}

	return a
}

// Policy returns the policy the authorizer was built with.
func (a *Authorizer) Policy() Policy {
	return a.policy
}

// Evaluate resolves raw and authorizes the result. It always returns a
// Verdict.
func (a *Authorizer) Evaluate(ctx context.Context, raw, origin string) Verdict {
	hashed, ok := a.ResolveCredential(ctx, raw)
	return a.Authorize(ctx, hashed, ok, origin)
}

// Authorize applies the policy to a resolved credential. ok reports whether
// hashed holds a credential hash; when false the keyless rules apply.
//
// Denials are returned as a Verdict with Issue set. Store failures deny the
// request and are reported to the observer, never returned.
func (a *Authorizer) Authorize(ctx context.Context, hashed string, ok bool, origin string) Verdict {
	ctx, span := a.tracer.Start(ctx, "auth.authorize")
	defer span.End()

	verdict := Verdict{
		Name:        UnknownUser,
		Environment: a.policy.environment,
	}

	if ok {
		a.authorizeKey(ctx, hashed, origin, &verdict)
	} else {
		a.authorizeKeyless(origin, &verdict)
	}

	span.SetAttributes(
		attribute.Bool("auth.authorized", verdict.Authorized),
		attribute.Bool("auth.keyless", verdict.KeylessEntry),
		attribute.String("auth.environment", verdict.Environment),
	)
	if verdict.Issue != "" {
		span.SetAttributes(attribute.String("auth.issue", verdict.Issue))
	}

	return verdict
}

func (a *Authorizer) authorizeKey(ctx context.Context, hashed, origin string, v *Verdict) {
	record, err := a.store.FindByHash(ctx, hashed)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			v.Issue = IssueKeyMismatch
			return
		}
		a.observer.Observe(ctx, events.Event{
			Kind:      events.KindLookupFailed,
			Component: "auth",
			Err:       err,
		})
		v.Issue = err.Error()
		return
	}
	if record == nil {
		v.Issue = IssueKeyMismatch
		return
	}
	v.Name = record.User

	if len(record.Environments) == 0 {
		v.Issue = IssueEnvNotSpecified
		return
	}
	if !contains(record.Environments, AnyEnvironment) && !contains(record.Environments, a.policy.environment) {
		v.Issue = IssueEnvMismatch
		return
	}

	// The origin list is read on every match so the check can be switched
	// on without touching the store contract.
	if enforceKeyOrigins {
		if issue := keyOriginIssue(record, origin); issue != "" {
			v.Issue = issue
			return
		}
	}

	v.Authorized = true
}

func (a *Authorizer) authorizeKeyless(origin string, v *Verdict) {
	if !a.policy.supportsKeyless() {
		v.Issue = IssueKeylessUnsupported
		return
	}
	if a.policy.allowsKeylessOrigin(origin) {
		v.Authorized = true
		v.KeylessEntry = true
		return
	}
	v.Issue = issueOriginPrefix + origin
}

// keyOriginIssue returns the denial for origin under the key's origin
// list, or "" when the origin may present the key. A key without origins
// is denied; "*" allows any origin.
func keyOriginIssue(record *KeyRecord, origin string) string {
	if len(record.Origins) == 0 {
		return IssueOriginNotSpecified
	}
	if contains(record.Origins, AnyEnvironment) || (origin != "" && contains(record.Origins, origin)) {
		return ""
	}
	return IssueOriginMismatch
}
