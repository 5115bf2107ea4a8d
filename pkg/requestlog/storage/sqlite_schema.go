package storage

// SchemaVersion is the current request log schema version.
const SchemaVersion = 1

// Schema creates the request log tables. req_time is stored as Unix
// nanoseconds so range queries behave the same under both SQLite drivers.
const Schema = `
CREATE TABLE IF NOT EXISTS request_log (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    route TEXT NOT NULL,

    -- Verdict
    user_name TEXT NOT NULL,
    authorized BOOLEAN NOT NULL,
    api_env TEXT,
    issue TEXT,
    keyless_entry BOOLEAN NOT NULL DEFAULT 0,

    ip TEXT,
    body TEXT,
    headers TEXT,
    req_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_log_collection_time ON request_log(collection, req_time);
CREATE INDEX IF NOT EXISTS idx_request_log_req_time ON request_log(req_time);
CREATE INDEX IF NOT EXISTS idx_request_log_user_name ON request_log(user_name);
CREATE INDEX IF NOT EXISTS idx_request_log_route ON request_log(route);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion returns the newest recorded schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const selectColumns = `id, collection, route, user_name, authorized, api_env, issue, keyless_entry, ip, body, headers, req_time`
