package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "financial_records", up: migrateV1},
		{version: 2, name: "corp_directory", up: migrateV2},
		{version: 3, name: "processing_status", up: migrateV3},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil // Already applied
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	s.logger.Debug().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
	return tx.Commit()
}

func execAll(ctx context.Context, tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// migrateV1 creates the normalized record cache
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS financial_records (
			corp_code TEXT NOT NULL,
			fiscal_year INTEGER NOT NULL,
			quarter INTEGER NOT NULL CHECK (quarter BETWEEN 1 AND 4),
			revenue INTEGER NOT NULL,
			operating_profit INTEGER NOT NULL,
			statement_div TEXT NOT NULL,
			retrieved_at INTEGER NOT NULL,
			PRIMARY KEY (corp_code, fiscal_year, quarter)
		)`,
	})
}

// migrateV2 creates the corp-code directory snapshot
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS corp_directory (
			corp_code TEXT PRIMARY KEY,
			corp_name TEXT NOT NULL,
			corp_eng_name TEXT NOT NULL DEFAULT '',
			stock_code TEXT NOT NULL DEFAULT '',
			modify_date TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_corp_directory_name ON corp_directory(corp_name)`,
		`CREATE TABLE IF NOT EXISTS directory_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			fetched_at INTEGER NOT NULL,
			entry_count INTEGER NOT NULL
		)`,
	})
}

// migrateV3 creates batch warm-up bookkeeping
func migrateV3(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS processing_status (
			corp_code TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			processed_at INTEGER NOT NULL
		)`,
	})
}
