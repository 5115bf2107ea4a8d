package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = int64(1 << 20)

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// TLS defaults
	DefaultTLSMinVersion     = "1.3"
	DefaultTLSReloadInterval = 5 * time.Minute

	// Key store defaults
	DefaultKeysBackend  = "memory"
	DefaultKeysDebounce = 100 * time.Millisecond

	// Request log defaults
	DefaultLogsEnabled          = true
	DefaultLogsBackend          = "sqlite"
	DefaultLogsCollection       = "requests"
	DefaultLogsAsync            = true
	DefaultLogsAsyncBuffer      = 1000
	DefaultLogsWriteTimeout     = 5 * time.Second
	DefaultSQLitePath           = "data/requests.db"
	DefaultSQLiteDriver         = "sqlite3"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteWALMode        = true
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultRetentionDays        = 90
	DefaultRetentionSchedule    = "0 3 * * *"
	DefaultRetentionArchivePath = "data/archives"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "keygate"
	DefaultTracingServiceName = "keygate"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// ApplyDefaults fills in zero-valued fields with their default values.
// Fields that are already set are left untouched.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	applyCORSDefaults(&cfg.Server.CORS)
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReloadInterval
	}

	// Key store defaults
	if cfg.Keys.Backend == "" {
		cfg.Keys.Backend = DefaultKeysBackend
	}
	if cfg.Keys.Debounce == 0 {
		cfg.Keys.Debounce = DefaultKeysDebounce
	}

	applyLogsDefaults(&cfg.Logs)

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		cfg.Telemetry.Metrics.Enabled = boolPtr(DefaultMetricsEnabled)
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

func applyCORSDefaults(cors *CORSConfig) {
	if cors.Enabled == nil {
		cors.Enabled = boolPtr(DefaultCORSEnabled)
	}
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Content-Type", "X-Request-ID", "X-Real-IP", "X-Forwarded-For"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

func applyLogsDefaults(logs *LogsConfig) {
	if logs.Enabled == nil {
		logs.Enabled = boolPtr(DefaultLogsEnabled)
	}
	if logs.Backend == "" {
		logs.Backend = DefaultLogsBackend
	}
	if logs.Collection == "" {
		logs.Collection = DefaultLogsCollection
	}
	if logs.Async == nil {
		logs.Async = boolPtr(DefaultLogsAsync)
	}
	if logs.AsyncBuffer == 0 {
		logs.AsyncBuffer = DefaultLogsAsyncBuffer
	}
	if logs.WriteTimeout == 0 {
		logs.WriteTimeout = DefaultLogsWriteTimeout
	}

	if logs.SQLite.Path == "" {
		logs.SQLite.Path = DefaultSQLitePath
	}
	if logs.SQLite.Driver == "" {
		logs.SQLite.Driver = DefaultSQLiteDriver
	}
	if logs.SQLite.MaxOpenConns == 0 {
		logs.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if logs.SQLite.MaxIdleConns == 0 {
		logs.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if logs.SQLite.WALMode == nil {
		logs.SQLite.WALMode = boolPtr(DefaultSQLiteWALMode)
	}
	if logs.SQLite.BusyTimeout == 0 {
		logs.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Days and PruneSchedule have non-zero defaults; MaxRecords stays 0.
	if logs.Retention.Days == 0 {
		logs.Retention.Days = DefaultRetentionDays
	}
	if logs.Retention.PruneSchedule == "" {
		logs.Retention.PruneSchedule = DefaultRetentionSchedule
	}
	if logs.Retention.Archive.Path == "" {
		logs.Retention.Archive.Path = DefaultRetentionArchivePath
	}
}

// MinimalConfig returns a configuration with all defaults applied. It is
// what keygate runs with when no configuration file is given.
func MinimalConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
