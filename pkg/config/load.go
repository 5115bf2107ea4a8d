package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mercator-hq/keygate/pkg/security/auth"
)

// Deployment variables read in addition to the KEYGATE_ overrides. They
// are applied first, so the KEYGATE_ form wins when both are set.
const (
	EnvAPIEnvironment = "API_ENV"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
	EnvDBName         = "DB_NAME"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention KEYGATE_SECTION_FIELD (e.g., KEYGATE_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults, so keygate can be
// configured entirely from the environment.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = MinimalConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are given) into the process environment. Variables that are already set
// are not overwritten and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	applyDeploymentEnv(cfg)

	// Server overrides
	if val := os.Getenv("KEYGATE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("KEYGATE_SERVER_UPSTREAM_URL"); val != "" {
		cfg.Server.UpstreamURL = val
	}
	envDuration("KEYGATE_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("KEYGATE_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("KEYGATE_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if val := os.Getenv("KEYGATE_SERVER_MAX_BODY_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = i
		}
	}
	envBool("KEYGATE_SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	if val := os.Getenv("KEYGATE_SERVER_TLS_CERT_FILE"); val != "" {
		cfg.Server.TLS.CertFile = val
	}
	if val := os.Getenv("KEYGATE_SERVER_TLS_KEY_FILE"); val != "" {
		cfg.Server.TLS.KeyFile = val
	}

	// Auth overrides
	if val := os.Getenv("KEYGATE_AUTH_ENVIRONMENT"); val != "" {
		cfg.Auth.Environment = val
	}
	if val := os.Getenv("KEYGATE_AUTH_KEYLESS_ORIGINS"); val != "" {
		cfg.Auth.KeylessOrigins = auth.ParseOrigins(val)
	}
	envBool("KEYGATE_AUTH_ENFORCE", &cfg.Auth.Enforce)

	// Key store overrides
	if val := os.Getenv("KEYGATE_KEYS_BACKEND"); val != "" {
		cfg.Keys.Backend = val
	}
	if val := os.Getenv("KEYGATE_KEYS_PATH"); val != "" {
		cfg.Keys.Path = val
	}
	if val := os.Getenv("KEYGATE_KEYS_DSN"); val != "" {
		cfg.Keys.DSN = val
	}
	envBool("KEYGATE_KEYS_WATCH", &cfg.Keys.Watch)

	// Request log overrides
	envBoolPtr("KEYGATE_LOGS_ENABLED", &cfg.Logs.Enabled)
	if val := os.Getenv("KEYGATE_LOGS_BACKEND"); val != "" {
		cfg.Logs.Backend = val
	}
	if val := os.Getenv("KEYGATE_LOGS_COLLECTION"); val != "" {
		cfg.Logs.Collection = val
	}
	envBoolPtr("KEYGATE_LOGS_ASYNC", &cfg.Logs.Async)
	if val := os.Getenv("KEYGATE_LOGS_SQLITE_PATH"); val != "" {
		cfg.Logs.SQLite.Path = val
	}
	if val := os.Getenv("KEYGATE_LOGS_SQLITE_DRIVER"); val != "" {
		cfg.Logs.SQLite.Driver = val
	}
	if val := os.Getenv("KEYGATE_LOGS_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Logs.Retention.Days = i
		}
	}
	if val, ok := os.LookupEnv("KEYGATE_LOGS_RETENTION_PRUNE_SCHEDULE"); ok {
		cfg.Logs.Retention.PruneSchedule = val
	}
	if val := os.Getenv("KEYGATE_LOGS_RETENTION_MAX_RECORDS"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Logs.Retention.MaxRecords = i
		}
	}
	if val := os.Getenv("KEYGATE_LOGS_ARCHIVE_BACKEND"); val != "" {
		cfg.Logs.Retention.Archive.Backend = val
	}
	if val := os.Getenv("KEYGATE_LOGS_ARCHIVE_PATH"); val != "" {
		cfg.Logs.Retention.Archive.Path = val
	}
	if val := os.Getenv("KEYGATE_LOGS_ARCHIVE_S3_BUCKET"); val != "" {
		cfg.Logs.Retention.Archive.S3.Bucket = val
	}
	if val := os.Getenv("KEYGATE_LOGS_ARCHIVE_S3_REGION"); val != "" {
		cfg.Logs.Retention.Archive.S3.Region = val
	}
	if val := os.Getenv("KEYGATE_LOGS_ARCHIVE_S3_PREFIX"); val != "" {
		cfg.Logs.Retention.Archive.S3.Prefix = val
	}
	if val := os.Getenv("KEYGATE_LOGS_ARCHIVE_S3_ENDPOINT"); val != "" {
		cfg.Logs.Retention.Archive.S3.Endpoint = val
	}
	if val := os.Getenv("KEYGATE_LOGS_ARCHIVE_S3_ACCESS_KEY_ID"); val != "" {
		cfg.Logs.Retention.Archive.S3.AccessKeyID = val
	}
	if val := os.Getenv("KEYGATE_LOGS_ARCHIVE_S3_SECRET_ACCESS_KEY"); val != "" {
		cfg.Logs.Retention.Archive.S3.SecretAccessKey = val
	}

	// Telemetry overrides
	if val := os.Getenv("KEYGATE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("KEYGATE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	envBoolPtr("KEYGATE_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("KEYGATE_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	if val := os.Getenv("KEYGATE_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("KEYGATE_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// applyDeploymentEnv reads API_ENV, ALLOWED_ORIGINS and DB_NAME.
func applyDeploymentEnv(cfg *Config) {
	if val := os.Getenv(EnvAPIEnvironment); val != "" {
		cfg.Auth.Environment = val
	}
	if val := os.Getenv(EnvAllowedOrigins); val != "" {
		cfg.Auth.KeylessOrigins = auth.ParseOrigins(val)
	}
	if val := os.Getenv(EnvDBName); val != "" {
		cfg.Logs.Collection = val
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envBoolPtr(name string, dst **bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = &b
		}
	}
}
