/*
Package auth decides whether an inbound request may proceed.

A caller presents an optional credential of the form "salt:secret" and the
request origin. The Authorizer hashes the secret with the salt, looks the
hash up in a KeyStore, and checks the key's environments against the
deployment environment. Requests without a usable credential fall through to
the keyless rules: the deployment must be one of dev, test or prod and the
origin must be on the configured allowlist.

# Basic Usage

	policy := auth.NewPolicy("prod", auth.ParseOrigins(os.Getenv("ALLOWED_ORIGINS")))
	authorizer := auth.NewAuthorizer(store, policy, nil)

	verdict := authorizer.Evaluate(ctx, r.Header.Get("X-API-Key"), r.Header.Get("Origin"))
	if !verdict.Authorized {
		http.Error(w, verdict.Issue, http.StatusUnauthorized)
		return
	}

# Failure Handling

Authorize never returns an error. Denials carry a human readable Issue:

	key didn't match
	environment not specified.
	environment didn't match.
	no key provided. origin not recognized: <origin>
	environment does not support keyless access.

Infrastructure failures are handled asymmetrically. A hashing failure is
treated as "no credential" and the request continues on the keyless path.
A key store failure denies the request with the error text as the Issue.
Both are reported to the configured events.Observer.

# Key Origins

KeyRecord.Origins is stored and read, but the policy does not enforce it.

# Hashing

BcryptHasher produces the same strings as Node's bcrypt.hash(secret, salt),
so key hashes created by existing tooling keep working. Any other scheme can
be plugged in through Config.Hasher.
*/
package auth
