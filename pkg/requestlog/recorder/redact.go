package recorder

import "mercator-hq/keygate/pkg/requestlog"

// RedactedKey replaces the credential of authorized requests in the log.
const RedactedKey = "API key removed for logging purposes. The key was not stored in the database."

// RedactCredential overwrites the key field of the entry body in place. The
// field is written even when the request did not send one, so every
// authorized entry carries the same marker.
func RedactCredential(entry *requestlog.Entry) {
	if entry.Request.Body == nil {
		entry.Request.Body = map[string]any{}
	}
	entry.Request.Body[requestlog.KeyField] = RedactedKey
}
