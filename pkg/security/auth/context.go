package auth

import "context"

type contextKey string

const verdictKey contextKey = "keygate.verdict"

// WithVerdict returns a copy of ctx carrying v.
func WithVerdict(ctx context.Context, v Verdict) context.Context {
	return context.WithValue(ctx, verdictKey, v)
}

// VerdictFromContext returns the verdict stored by WithVerdict.
func VerdictFromContext(ctx context.Context) (Verdict, bool) {
	v, ok := ctx.Value(verdictKey).(Verdict)
	return v, ok
}
