package keystore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mercator-hq/keygate/pkg/security/auth"
)

// KeyRow is the row layout of the keys table. Environments and origins are
// stored as JSON arrays.
type KeyRow struct {
	ID           uint     `gorm:"primarykey"`
	Key          string   `gorm:"column:key;uniqueIndex;not null"`
	User         string   `gorm:"column:user;not null"`
	Environments []string `gorm:"column:environments;serializer:json"`
	Origins      []string `gorm:"column:origins;serializer:json"`
}

// TableName implements gorm's tabler interface.
func (KeyRow) TableName() string {
	return "keys"
}

func (r *KeyRow) record() *auth.KeyRecord {
	return &auth.KeyRecord{
		Key:          r.Key,
		User:         r.User,
		Environments: r.Environments,
		Origins:      r.Origins,
	}
}

// SQLStore looks up keys in a SQL database through GORM.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens a SQLite database at dsn.
func OpenSQLStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open key database: %w", err)
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing GORM handle.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// FindByHash implements auth.KeyStore.
func (s *SQLStore) FindByHash(ctx context.Context, hashed string) (*auth.KeyRecord, error) {
	var row KeyRow
	err := s.db.WithContext(ctx).Where(map[string]any{"key": hashed}).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("key lookup failed: %w", err)
	}
	return row.record(), nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
