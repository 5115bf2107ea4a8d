package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/keygate/pkg/requestlog"
)

// SQLite driver names.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPure is modernc.org/sqlite, usable with CGO_ENABLED=0.
	DriverPure = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the SQLite driver: DriverCGO or DriverPure.
	// Default: DriverCGO
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/requests.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// dsn builds a connection string that applies the pragmas on every pooled
// connection. The two drivers spell pragmas differently.
func (c *SQLiteConfig) dsn() string {
	ms := c.BusyTimeout.Milliseconds()
	switch c.Driver {
	case DriverPure:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", c.Path, ms)
		if c.WALMode {
			dsn += "&_pragma=journal_mode(WAL)"
		}
		return dsn
	default:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", c.Path, ms)
		if c.WALMode {
			dsn += "&_journal_mode=WAL"
		}
		return dsn
	}
}

// SQLiteStorage implements requestlog.Storage on SQLite. All collections
// share one table keyed by a collection column.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and creates the schema if needed.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Driver != DriverCGO && config.Driver != DriverPure {
		return nil, requestlog.NewStorageError("sqlite", "open", fmt.Errorf("unknown driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "requestlog.storage.sqlite")

	db, err := sql.Open(config.Driver, config.dsn())
	if err != nil {
		return nil, requestlog.NewStorageError("sqlite", "open", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return requestlog.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return requestlog.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return requestlog.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return requestlog.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Append implements requestlog.Sink.
func (s *SQLiteStorage) Append(ctx context.Context, collection string, entry *requestlog.Entry) (string, error) {
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	if collection == "" {
		collection = requestlog.DefaultCollection
	}

	body, err := json.Marshal(entry.Request.Body)
	if err != nil {
		return "", requestlog.NewStorageError("sqlite", "append", fmt.Errorf("encode body: %w", err))
	}
	headers, err := json.Marshal(entry.Request.Headers)
	if err != nil {
		return "", requestlog.NewStorageError("sqlite", "append", fmt.Errorf("encode headers: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO request_log (
			id, collection, route,
			user_name, authorized, api_env, issue, keyless_entry,
			ip, body, headers, req_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, collection, entry.Route,
		entry.User.Name, entry.User.Authorized, nullString(entry.User.Environment), nullString(entry.User.Issue), entry.User.KeylessEntry,
		entry.IP, string(body), string(headers), entry.ReqTime.UnixNano(),
	)
	if err != nil {
		return "", requestlog.NewStorageError("sqlite", "append", err)
	}

	return id, nil
}

// Query implements requestlog.Storage.
func (s *SQLiteStorage) Query(ctx context.Context, q *requestlog.Query) ([]*requestlog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.selectSQL(q), whereArgs(q)...)
	if err != nil {
		return nil, requestlog.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	entries := []*requestlog.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, requestlog.NewStorageError("sqlite", "scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, requestlog.NewStorageError("sqlite", "query", err)
	}

	return entries, nil
}

// QueryStream implements requestlog.Storage.
func (s *SQLiteStorage) QueryStream(ctx context.Context, q *requestlog.Query) (<-chan *requestlog.Entry, <-chan error, error) {
	entriesCh := make(chan *requestlog.Entry, 100)
	errCh := make(chan error, 1)

	query := s.selectSQL(q)
	args := whereArgs(q)

	go func() {
		defer close(entriesCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			errCh <- requestlog.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				errCh <- requestlog.NewStorageError("sqlite", "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case entriesCh <- e:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- requestlog.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return entriesCh, errCh, nil
}

// Count implements requestlog.Storage.
func (s *SQLiteStorage) Count(ctx context.Context, q *requestlog.Query) (int64, error) {
	query := "SELECT COUNT(*) FROM request_log"
	if where := whereClause(q); where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, whereArgs(q)...).Scan(&count); err != nil {
		return 0, requestlog.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete implements requestlog.Storage.
func (s *SQLiteStorage) Delete(ctx context.Context, q *requestlog.Query) (int64, error) {
	query := "DELETE FROM request_log"
	if where := whereClause(q); where != "" {
		query += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, query, whereArgs(q)...)
	if err != nil {
		return 0, requestlog.NewStorageError("sqlite", "delete", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, requestlog.NewStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// Ping implements requestlog.Storage.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return requestlog.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close implements requestlog.Storage.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return requestlog.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

func (s *SQLiteStorage) selectSQL(q *requestlog.Query) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectColumns)
	b.WriteString(" FROM request_log")
	if where := whereClause(q); where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}
	fmt.Fprintf(&b, " ORDER BY req_time %s, id %s", order, order)

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
		if q.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", q.Offset)
		}
	} else if q.Offset > 0 {
		fmt.Fprintf(&b, " LIMIT -1 OFFSET %d", q.Offset)
	}

	return b.String()
}

// whereClause and whereArgs must add conditions in the same order.
func whereClause(q *requestlog.Query) string {
	var conds []string
	if q.Collection != "" {
		conds = append(conds, "collection = ?")
	}
	if q.StartTime != nil {
		conds = append(conds, "req_time >= ?")
	}
	if q.EndTime != nil {
		conds = append(conds, "req_time <= ?")
	}
	if q.Route != "" {
		conds = append(conds, "route = ?")
	}
	if q.User != "" {
		conds = append(conds, "user_name = ?")
	}
	if q.Environment != "" {
		conds = append(conds, "api_env = ?")
	}
	if q.Authorized != nil {
		conds = append(conds, "authorized = ?")
	}
	if q.Keyless != nil {
		conds = append(conds, "keyless_entry = ?")
	}
	return strings.Join(conds, " AND ")
}

func whereArgs(q *requestlog.Query) []any {
	var args []any
	if q.Collection != "" {
		args = append(args, q.Collection)
	}
	if q.StartTime != nil {
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		args = append(args, q.EndTime.UnixNano())
	}
	if q.Route != "" {
		args = append(args, q.Route)
	}
	if q.User != "" {
		args = append(args, q.User)
	}
	if q.Environment != "" {
		args = append(args, q.Environment)
	}
	if q.Authorized != nil {
		args = append(args, *q.Authorized)
	}
	if q.Keyless != nil {
		args = append(args, *q.Keyless)
	}
	return args
}

func scanEntry(rows *sql.Rows) (*requestlog.Entry, error) {
	var (
		e              requestlog.Entry
		env, issue, ip sql.NullString
		body, headers  sql.NullString
		reqTime        int64
	)

	err := rows.Scan(
		&e.ID, &e.Collection, &e.Route,
		&e.User.Name, &e.User.Authorized, &env, &issue, &e.User.KeylessEntry,
		&ip, &body, &headers, &reqTime,
	)
	if err != nil {
		return nil, err
	}

	e.User.Environment = env.String
	e.User.Issue = issue.String
	e.IP = ip.String
	e.ReqTime = time.Unix(0, reqTime).UTC()

	if body.Valid && body.String != "" {
		if err := json.Unmarshal([]byte(body.String), &e.Request.Body); err != nil {
			return nil, fmt.Errorf("decode body of %s: %w", e.ID, err)
		}
	}
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &e.Request.Headers); err != nil {
			return nil, fmt.Errorf("decode headers of %s: %w", e.ID, err)
		}
	}

	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
