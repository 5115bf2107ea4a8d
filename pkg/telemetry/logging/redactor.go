package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces sensitive attribute values.
const Redacted = "***"

// sensitiveKeys are attribute names whose values are always masked.
var sensitiveKeys = map[string]struct{}{
	"key":               {},
	"api_key":           {},
	"apikey":            {},
	"authorization":     {},
	"password":          {},
	"passwd":            {},
	"secret":            {},
	"secret_access_key": {},
	"token":             {},
	"credential":        {},
}

// Redactor masks credentials in log attributes.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []redactPattern{
			// bcrypt hashes as stored in the key store
			{
				regex:       regexp.MustCompile(`\$2[aby]?\$\d{2}\$[./A-Za-z0-9]{53}`),
				replacement: "$2*$**$" + Redacted,
			},
			{
				regex:       regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`),
				replacement: "Bearer " + Redacted,
			},
		},
	}
}

// IsSensitiveKey reports whether values logged under key are masked.
func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// RedactString applies the value patterns to s.
func (r *Redactor) RedactString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllLiteralString(s, p.replacement)
	}
	return s
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function. It masks
// values under sensitive keys and scrubs hashes and bearer tokens from
// other string values.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if IsSensitiveKey(a.Key) {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, Redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		if v := a.Value.String(); v != "" {
			if redacted := r.RedactString(v); redacted != v {
				return slog.String(a.Key, redacted)
			}
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			msg := err.Error()
			if redacted := r.RedactString(msg); redacted != msg {
				return slog.String(a.Key, redacted)
			}
		}
	}
	return a
}
