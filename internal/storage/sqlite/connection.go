package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/ternarybob/dartseries/internal/common"
)

// SQLiteDB manages the SQLite database connection
type SQLiteDB struct {
	db     *sql.DB
	logger arbor.ILogger
	config *common.SQLiteConfig

	// writeMu serializes writers across all storages sharing this file.
	// Prevents SQLITE_BUSY errors on concurrent writes.
	writeMu sync.Mutex
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(logger arbor.ILogger, config *common.SQLiteConfig) (*SQLiteDB, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite uses "sqlite" driver name (not "sqlite3")
	db, err := sql.Open("sqlite", dsn(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteDB{
		db:     db,
		logger: logger,
		config: config,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("SQLite database initialized")
	return s, nil
}

// dsn carries the pragmas as _pragma parameters so the driver applies them
// to every connection the pool opens, not just the first.
func dsn(config *common.SQLiteConfig) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", config.BusyTimeoutMS))
	params.Add("_pragma", "synchronous(NORMAL)")
	if config.CacheSizeMB > 0 {
		params.Add("_pragma", fmt.Sprintf("cache_size(-%d)", config.CacheSizeMB*1024)) // Negative for KB
	}
	if config.WALMode {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + config.Path + "?" + params.Encode()
}

// DB returns the underlying database connection
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withWriteTx runs fn inside a transaction while holding the write lock.
// The transaction is rolled back if fn returns an error or the context is cancelled.
func (s *SQLiteDB) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping verifies the database connection
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
