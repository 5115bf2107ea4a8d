package main

import (
	"fmt"

	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/keystore"
	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/requestlog/recorder"
	"mercator-hq/keygate/pkg/requestlog/retention"
	"mercator-hq/keygate/pkg/requestlog/storage"
	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/telemetry/events"
	"mercator-hq/keygate/pkg/telemetry/metrics"
)

// openKeyStore opens the configured key store backend.
func openKeyStore(cfg *config.KeysConfig, observer events.Observer) (keystore.Store, error) {
	store, err := keystore.Open(keystore.Config{
		Backend:  cfg.Backend,
		Path:     cfg.Path,
		DSN:      cfg.DSN,
		Debounce: cfg.Debounce,
		Keys:     cfg.Keys,
		Observer: observer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	return store, nil
}

// sqliteConfig maps the logs.sqlite section onto the storage options.
func sqliteConfig(cfg *config.SQLiteConfig) *storage.SQLiteConfig {
	return &storage.SQLiteConfig{
		Path:         cfg.Path,
		Driver:       cfg.Driver,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		WALMode:      config.Enabled(cfg.WALMode),
		BusyTimeout:  cfg.BusyTimeout,
	}
}

// openLogStorage opens the configured request log backend.
func openLogStorage(cfg *config.LogsConfig) (requestlog.Storage, error) {
	store, err := storage.Open(cfg.Backend, sqliteConfig(&cfg.SQLite))
	if err != nil {
		return nil, fmt.Errorf("failed to open request log storage: %w", err)
	}
	return store, nil
}

// newAuthorizer builds the authorizer for the configured policy.
func newAuthorizer(cfg *config.AuthConfig, store auth.KeyStore, observer events.Observer, m auth.Metrics) *auth.Authorizer {
	return auth.NewAuthorizer(store, auth.NewPolicy(cfg.Environment, cfg.KeylessOrigins), &auth.Config{
		Observer: observer,
		Metrics:  m,
	})
}

// newRecorder builds the request recorder writing to sink.
func newRecorder(cfg *config.LogsConfig, sink requestlog.Sink, observer events.Observer, m recorder.Metrics) *recorder.Recorder {
	return recorder.NewRecorder(sink, &recorder.Config{
		Enabled:      config.Enabled(cfg.Enabled),
		Async:        config.Enabled(cfg.Async),
		AsyncBuffer:  cfg.AsyncBuffer,
		WriteTimeout: cfg.WriteTimeout,
		Collection:   cfg.Collection,
		Observer:     observer,
		Metrics:      m,
	})
}

// newArchiver returns the configured archiver, or nil when archiving is off.
func newArchiver(cfg *config.ArchiveConfig) (retention.Archiver, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "local":
		return retention.NewLocalArchiver(cfg.Path), nil
	case "s3":
		a, err := retention.NewS3Archiver(retention.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 archiver: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}

// newPruner builds the retention pruner for the request log. m may be nil.
func newPruner(cfg *config.LogsConfig, store requestlog.Storage, m *metrics.Collector) (*retention.Pruner, error) {
	archiver, err := newArchiver(&cfg.Retention.Archive)
	if err != nil {
		return nil, err
	}

	rc := &retention.Config{
		RetentionDays: cfg.Retention.Days,
		PruneSchedule: cfg.Retention.PruneSchedule,
		MaxRecords:    cfg.Retention.MaxRecords,
		Collection:    cfg.Collection,
	}
	if m != nil {
		rc.Metrics = m
	}

	return retention.NewPruner(store, rc, archiver), nil
}
