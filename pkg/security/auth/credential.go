package auth

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/keygate/pkg/telemetry/events"
)

// CredentialSeparator splits a raw credential into salt and secret.
const CredentialSeparator = ":"

// SplitCredential splits raw at the first separator. ok is false when the
// separator is missing or the salt would be empty.
func SplitCredential(raw string) (salt, secret string, ok bool) {
	i := strings.Index(raw, CredentialSeparator)
	if i <= 0 {
		return "", "", false
	}
	return raw[:i], raw[i+len(CredentialSeparator):], true
}

// ResolveCredential turns a raw "salt:secret" credential into the hash used
// for key store lookup.
//
// A missing or malformed credential is not an error: ok is false and the
// request continues on the keyless path. A hashing failure is treated the
// same way after it has been reported to the observer.
func (a *Authorizer) ResolveCredential(ctx context.Context, raw string) (string, bool) {
	ctx, span := a.tracer.Start(ctx, "auth.resolve_credential")
	defer span.End()

	salt, secret, ok := SplitCredential(raw)
	if !ok {
		span.SetAttributes(attribute.Bool("auth.credential_present", raw != ""))
		return "", false
	}

	start := time.Now()
	hashed, err := a.hasher.Hash(secret, salt)
	if a.metrics != nil {
		a.metrics.ObserveHash(time.Since(start), err == nil)
	}
	if err != nil {
		span.RecordError(err)
		a.observer.Observe(ctx, events.Event{
			Kind:      events.KindHashFailed,
			Component: "auth",
			Err:       err,
		})
		return "", false
	}

	span.SetAttributes(attribute.Bool("auth.credential_hashed", true))
	return hashed, true
}
