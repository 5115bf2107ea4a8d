package config

import (
	"time"

	"mercator-hq/keygate/pkg/security/auth"
)

// Config is the root configuration structure for keygate.
// It contains all configuration sections for the server, the authorizer,
// the key store, the request log and telemetry.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Auth contains the authorization policy.
	Auth AuthConfig `yaml:"auth"`

	// Keys contains key store configuration.
	Keys KeysConfig `yaml:"keys"`

	// Logs contains request log configuration.
	Logs LogsConfig `yaml:"logs"`

	// Telemetry contains logging, metrics, tracing and health configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is the address to bind the HTTP server to.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// UpstreamURL is where authorized requests are forwarded. When empty
	// the gate answers requests itself and only /v1/authorize is useful.
	UpstreamURL string `yaml:"upstream_url"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits how much of a request body is captured for
	// credential lookup and logging.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains cross-origin configuration.
	CORS CORSConfig `yaml:"cors"`

	// TLS contains TLS configuration for the listener.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	// Enabled serves HTTPS instead of plain HTTP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum TLS version to accept ("1.2" or "1.3").
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 cipher suites. Empty keeps Go's defaults.
	// Example: ["TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"]
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often certificate files are checked for changes.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// AllowedOrigins lists origins allowed to make cross-origin requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed HTTP methods.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders lists headers exposed to the browser.
	ExposedHeaders []string `yaml:"exposed_headers"`

	// AllowCredentials allows cookies and credentials.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`

	// MaxAge is how long preflight results are cached, in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// AuthConfig contains the authorization policy.
type AuthConfig struct {
	// Environment is the environment this deployment runs as, for example
	// "dev" or "prod". Keys must list it (or "*") to be accepted.
	// Env: API_ENV
	Environment string `yaml:"environment"`

	// KeylessOrigins lists origins allowed without a key in dev, test and
	// prod environments.
	// Env: ALLOWED_ORIGINS (comma-separated)
	KeylessOrigins []string `yaml:"keyless_origins"`

	// Enforce rejects unauthorized requests with 401. When false every
	// request passes and the verdict is only recorded.
	// Default: false
	Enforce bool `yaml:"enforce"`
}

// KeysConfig contains key store configuration.
type KeysConfig struct {
	// Backend selects the key store: "memory", "file" or "sql".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the YAML key file for the file backend.
	Path string `yaml:"path"`

	// DSN is the SQLite database for the sql backend.
	DSN string `yaml:"dsn"`

	// Watch reloads the key file when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce is how long file changes settle before a reload.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// Keys seeds the memory backend.
	Keys []*auth.KeyRecord `yaml:"keys"`
}

// LogsConfig contains request log configuration.
type LogsConfig struct {
	// Enabled controls whether requests are logged.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Backend selects the storage backend: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Collection is the collection entries are appended to.
	// Env: DB_NAME
	// Default: "requests"
	Collection string `yaml:"collection"`

	// SQLite contains SQLite storage configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Async writes entries from a background worker.
	// Default: true
	Async *bool `yaml:"async"`

	// AsyncBuffer is the size of the async write queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds each storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention contains pruning configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite request log storage configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/requests.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver: "sqlite3" (cgo) or "sqlite"
	// (pure Go).
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains request log retention configuration.
type RetentionConfig struct {
	// Days is how long entries are kept. 0 keeps them forever.
	// Default: 90
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for automatic pruning.
	// Empty disables scheduled pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxRecords caps the number of stored entries. 0 means unlimited.
	MaxRecords int64 `yaml:"max_records"`

	// Archive stores entries before they are deleted.
	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig contains archive-before-delete configuration.
type ArchiveConfig struct {
	// Backend is "" (no archive), "local" or "s3".
	Backend string `yaml:"backend"`

	// Path is the archive directory for the local backend.
	// Default: "data/archives"
	Path string `yaml:"path"`

	// S3 contains S3 configuration for the s3 backend.
	S3 S3Config `yaml:"s3"`
}

// S3Config contains S3 archive configuration.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`

	// Endpoint overrides the S3 endpoint for MinIO, R2 and similar.
	Endpoint string `yaml:"endpoint"`

	// AccessKeyID and SecretAccessKey are static credentials. When empty
	// the client has no credentials configured.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	UsePathStyle bool `yaml:"use_path_style"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "keygate"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether traces are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "keygate"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the liveness probe path.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the readiness probe path.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds each component check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// Enabled reports whether p is set and true.
func Enabled(p *bool) bool {
	return p != nil && *p
}

func boolPtr(b bool) *bool {
	return &b
}
