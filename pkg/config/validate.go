package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateKeys(&cfg.Keys)...)
	errs = append(errs, validateLogs(&cfg.Logs)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateTLS validates listener TLS configuration. File existence is
// checked when the certificate is loaded, not here.
func validateTLS(cfg *TLSConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.CertFile == "" {
		errs = append(errs, FieldError{
			Field:   "server.tls.cert_file",
			Message: "cert file is required when TLS is enabled",
		})
	}
	if cfg.KeyFile == "" {
		errs = append(errs, FieldError{
			Field:   "server.tls.key_file",
			Message: "key file is required when TLS is enabled",
		})
	}
	if cfg.MinVersion != "1.2" && cfg.MinVersion != "1.3" {
		errs = append(errs, FieldError{
			Field:   "server.tls.min_version",
			Message: fmt.Sprintf("must be 1.2 or 1.3, got %q", cfg.MinVersion),
		})
	}
	if cfg.ReloadInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "server.tls.reload_interval",
			Message: "reload interval must be positive",
		})
	}

	return errs
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.UpstreamURL != "" {
		u, err := url.Parse(cfg.UpstreamURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "server.upstream_url",
				Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", cfg.UpstreamURL),
			})
		}
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: "max body bytes must be non-negative",
		})
	}

	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "server.cors.max_age",
			Message: "max age must be non-negative",
		})
	}
	if cfg.CORS.AllowCredentials && containsString(cfg.CORS.AllowedOrigins, "*") {
		errs = append(errs, FieldError{
			Field:   "server.cors.allow_credentials",
			Message: "credentials cannot be allowed with wildcard origin",
		})
	}

	errs = append(errs, validateTLS(&cfg.TLS)...)

	return errs
}

// validateAuth validates the authorization policy.
func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(cfg.Environment) != cfg.Environment {
		errs = append(errs, FieldError{
			Field:   "auth.environment",
			Message: "environment must not contain surrounding whitespace",
		})
	}

	for i, origin := range cfg.KeylessOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("auth.keyless_origins[%d]", i),
				Message: "origin must not be empty",
			})
		}
	}

	return errs
}

// validateKeys validates key store configuration.
func validateKeys(cfg *KeysConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
		if cfg.Watch {
			errs = append(errs, FieldError{
				Field:   "keys.watch",
				Message: "watch requires the file backend",
			})
		}
	case "file":
		if cfg.Path == "" {
			errs = append(errs, FieldError{
				Field:   "keys.path",
				Message: "path is required for the file backend",
			})
		}
	case "sql":
		if cfg.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "keys.dsn",
				Message: "dsn is required for the sql backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "keys.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory, file or sql)", cfg.Backend),
		})
	}

	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "keys.debounce",
			Message: "debounce must be non-negative",
		})
	}

	for i, k := range cfg.Keys {
		if k == nil || k.Key == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("keys.keys[%d].key", i),
				Message: "key hash is required",
			})
		}
	}

	return errs
}

// validateLogs validates request log configuration.
func validateLogs(cfg *LogsConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "logs.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "logs.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q (must be sqlite3 or sqlite)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 || cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{
				Field:   "logs.sqlite",
				Message: "connection limits must be non-negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "logs.backend",
			Message: fmt.Sprintf("invalid backend %q (must be sqlite or memory)", cfg.Backend),
		})
	}

	if cfg.Collection == "" {
		errs = append(errs, FieldError{
			Field:   "logs.collection",
			Message: "collection is required",
		})
	}
	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "logs.async_buffer",
			Message: "async buffer must be non-negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "logs.write_timeout",
			Message: "write timeout must be positive",
		})
	}

	errs = append(errs, validateRetention(&cfg.Retention)...)

	return errs
}

// validateRetention validates retention and archive configuration.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "logs.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "logs.retention.max_records",
			Message: "max records must be non-negative",
		})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "logs.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	switch cfg.Archive.Backend {
	case "":
	case "local":
		if cfg.Archive.Path == "" {
			errs = append(errs, FieldError{
				Field:   "logs.retention.archive.path",
				Message: "path is required for the local archive",
			})
		}
	case "s3":
		if cfg.Archive.S3.Bucket == "" {
			errs = append(errs, FieldError{
				Field:   "logs.retention.archive.s3.bucket",
				Message: "bucket is required for the s3 archive",
			})
		}
		if cfg.Archive.S3.Region == "" {
			errs = append(errs, FieldError{
				Field:   "logs.retention.archive.s3.region",
				Message: "region is required for the s3 archive",
			})
		}
		if (cfg.Archive.S3.AccessKeyID == "") != (cfg.Archive.S3.SecretAccessKey == "") {
			errs = append(errs, FieldError{
				Field:   "logs.retention.archive.s3",
				Message: "access_key_id and secret_access_key must be set together",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "logs.retention.archive.backend",
			Message: fmt.Sprintf("invalid archive backend %q (must be local or s3)", cfg.Archive.Backend),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if Enabled(cfg.Metrics.Enabled) && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.liveness_path",
			Message: "path must start with /",
		})
	}
	if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.readiness_path",
			Message: "path must start with /",
		})
	}

	return errs
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
