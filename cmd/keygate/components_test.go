package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/requestlog/retention"
	"mercator-hq/keygate/pkg/requestlog/storage"
	"mercator-hq/keygate/pkg/security/auth"
)

func TestNewArchiver(t *testing.T) {
	a, err := newArchiver(&config.ArchiveConfig{})
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = newArchiver(&config.ArchiveConfig{Backend: "local", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &retention.LocalArchiver{}, a)

	a, err = newArchiver(&config.ArchiveConfig{Backend: "s3", S3: config.S3Config{
		Bucket:          "logs",
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	}})
	require.NoError(t, err)
	assert.IsType(t, &retention.S3Archiver{}, a)

	_, err = newArchiver(&config.ArchiveConfig{Backend: "ftp"})
	assert.Error(t, err)
}

func TestSQLiteConfigMapping(t *testing.T) {
	cfg := config.MinimalConfig()
	cfg.Logs.SQLite.Path = "/var/lib/keygate/requests.db"
	cfg.Logs.SQLite.Driver = storage.DriverPure

	sc := sqliteConfig(&cfg.Logs.SQLite)
	assert.Equal(t, "/var/lib/keygate/requests.db", sc.Path)
	assert.Equal(t, storage.DriverPure, sc.Driver)
	assert.True(t, sc.WALMode)
	assert.Equal(t, cfg.Logs.SQLite.BusyTimeout, sc.BusyTimeout)
}

func TestWiredComponents(t *testing.T) {
	cfg := config.MinimalConfig()
	cfg.Auth.Environment = "prod"
	cfg.Keys.Backend = "memory"
	cfg.Logs.Backend = "sqlite"
	cfg.Logs.SQLite.Path = filepath.Join(t.TempDir(), "requests.db")
	cfg.Logs.Retention.Days = 30

	keys, err := openKeyStore(&cfg.Keys, nil)
	require.NoError(t, err)
	defer keys.Close()

	store, err := openLogStorage(&cfg.Logs)
	require.NoError(t, err)
	defer store.Close()

	verdict := newAuthorizer(&cfg.Auth, keys, nil, nil).Evaluate(context.Background(), "", "https://unknown.example.com")
	assert.False(t, verdict.Authorized)
	assert.Equal(t, "prod", verdict.Environment)
	assert.Equal(t, auth.ReasonOriginNotRecognized, verdict.Reason())

	pruner, err := newPruner(&cfg.Logs, store, nil)
	require.NoError(t, err)
	deleted, err := pruner.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)

	rec := newRecorder(&cfg.Logs, store, nil, nil)
	require.NoError(t, rec.Close())
	assert.Equal(t, config.DefaultLogsCollection, rec.Collection())
}
