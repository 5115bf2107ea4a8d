package auth

import (
	"context"
	"errors"
	"strings"
)

// Default values and fixed issue strings recorded on denied verdicts.
const (
	// UnknownUser is the verdict name until a key resolves to its owner.
	UnknownUser = "unknown"

	IssueKeyMismatch        = "key didn't match"
	IssueEnvNotSpecified    = "environment not specified."
	IssueEnvMismatch        = "environment didn't match."
	IssueKeylessUnsupported = "environment does not support keyless access."
	IssueOriginNotSpecified = "origin not specified."
	IssueOriginMismatch     = "origin didn't match."
	issueOriginPrefix       = "no key provided. origin not recognized: "

	// AnyEnvironment in a key's environment list matches every deployment.
	AnyEnvironment = "*"
)

// keylessEnvironments are the deployments that accept keyless requests from
// allowlisted origins. The set is fixed; it is not configurable.
var keylessEnvironments = map[string]struct{}{
	"dev":  {},
	"test": {},
	"prod": {},
}

// ErrKeyNotFound is returned by a KeyStore when no record has the hash.
var ErrKeyNotFound = errors.New("key not found")

// KeyRecord is a stored API key. Key holds the salted hash, never the
// plaintext credential.
type KeyRecord struct {
	Key          string   `json:"key" yaml:"key"`
	User         string   `json:"user" yaml:"user"`
	Environments []string `json:"environments" yaml:"environments"`

	// Origins restricts which request origins may present the key. It is
	// stored and read but not enforced.
	Origins []string `json:"origins,omitempty" yaml:"origins,omitempty"`
}

// KeyStore looks up key records by exact hash match.
// Implementations must be safe for concurrent use.
type KeyStore interface {
	// FindByHash returns the record whose Key equals hashed, or
	// ErrKeyNotFound. Any other error means the store could not be queried.
	FindByHash(ctx context.Context, hashed string) (*KeyRecord, error)
}

// Verdict is the outcome of authorizing one request. JSON names match the
// documents written by earlier deployments so old and new log entries can be
// queried together.
type Verdict struct {
	Name         string `json:"name"`
	Authorized   bool   `json:"authorized"`
	Environment  string `json:"api_env"`
	Issue        string `json:"issue,omitempty"`
	KeylessEntry bool   `json:"keylessEntry,omitempty"`
}

// Verdict reasons returned by Reason.
const (
	ReasonKey                 = "key"
	ReasonKeyless             = "keyless"
	ReasonKeyMismatch         = "key_mismatch"
	ReasonEnvNotSpecified     = "env_not_specified"
	ReasonEnvMismatch         = "env_mismatch"
	ReasonKeylessUnsupported  = "keyless_unsupported"
	ReasonOriginNotRecognized = "origin_not_recognized"
	ReasonOriginNotSpecified  = "origin_not_specified"
	ReasonOriginMismatch      = "origin_mismatch"
	ReasonLookupFailed        = "lookup_failed"
)

// Reason classifies v into a fixed set of values suitable for metric labels.
// Issue cannot be used directly since it may carry the request origin or a
// store error.
func (v Verdict) Reason() string {
	if v.Authorized {
		if v.KeylessEntry {
			return ReasonKeyless
		}
		return ReasonKey
	}

	switch {
	case v.Issue == IssueKeyMismatch:
		return ReasonKeyMismatch
	case v.Issue == IssueEnvNotSpecified:
		return ReasonEnvNotSpecified
	case v.Issue == IssueEnvMismatch:
		return ReasonEnvMismatch
	case v.Issue == IssueKeylessUnsupported:
		return ReasonKeylessUnsupported
	case v.Issue == IssueOriginNotSpecified:
		return ReasonOriginNotSpecified
	case v.Issue == IssueOriginMismatch:
		return ReasonOriginMismatch
	case strings.HasPrefix(v.Issue, issueOriginPrefix):
		return ReasonOriginNotRecognized
	default:
		return ReasonLookupFailed
	}
}

// Policy is the deployment configuration the authorizer evaluates against.
// It is built once at startup and never changes afterwards.
type Policy struct {
	environment    string
	keylessOrigins map[string]struct{}
}

// NewPolicy returns a Policy for the given deployment environment and the
// origins allowed to call without a key.
func NewPolicy(environment string, keylessOrigins []string) Policy {
	origins := make(map[string]struct{}, len(keylessOrigins))
	for _, o := range keylessOrigins {
		if o == "" {
			continue
		}
		origins[o] = struct{}{}
	}
	return Policy{
		environment:    environment,
		keylessOrigins: origins,
	}
}

// ParseOrigins splits a comma-separated origin allowlist. Surrounding
// whitespace is trimmed and empty items are dropped.
func ParseOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// Environment returns the deployment environment tag.
func (p Policy) Environment() string {
	return p.environment
}

// KeylessOrigins returns a copy of the keyless origin allowlist.
func (p Policy) KeylessOrigins() []string {
	out := make([]string, 0, len(p.keylessOrigins))
	for o := range p.keylessOrigins {
		out = append(out, o)
	}
	return out
}

func (p Policy) allowsKeylessOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := p.keylessOrigins[origin]
	return ok
}

func (p Policy) supportsKeyless() bool {
	_, ok := keylessEnvironments[p.environment]
	return ok
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}
