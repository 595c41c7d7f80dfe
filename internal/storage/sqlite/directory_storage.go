package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

// DirectoryStorage implements interfaces.DirectoryStorage on corp_directory and directory_meta
type DirectoryStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDirectoryStorage creates a new DirectoryStorage instance
func NewDirectoryStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.DirectoryStorage {
	return &DirectoryStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceDirectory swaps the snapshot in a single transaction
func (s *DirectoryStorage) ReplaceDirectory(ctx context.Context, corps []models.Corporation, fetchedAt time.Time) error {
	err := s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM corp_directory`); err != nil {
			return fmt.Errorf("failed to clear directory: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO corp_directory (corp_code, corp_name, corp_eng_name, stock_code, modify_date)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(corp_code) DO UPDATE SET
				corp_name = excluded.corp_name,
				corp_eng_name = excluded.corp_eng_name,
				stock_code = excluded.stock_code,
				modify_date = excluded.modify_date
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range corps {
			if _, err := stmt.ExecContext(ctx, c.CorpCode.String(), c.Name, c.EnglishName, c.StockCode, c.ModifyDate); err != nil {
				return fmt.Errorf("failed to insert %s: %w", c.CorpCode, err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO directory_meta (id, fetched_at, entry_count) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET fetched_at = excluded.fetched_at, entry_count = excluded.entry_count
		`, fetchedAt.UnixNano(), len(corps))
		if err != nil {
			return fmt.Errorf("failed to update directory meta: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int("corporations", len(corps)).Msg("Stored corp code directory")
	return nil
}

// LoadDirectory reads the full snapshot
func (s *DirectoryStorage) LoadDirectory(ctx context.Context) (*models.DirectorySnapshot, error) {
	snapshot := &models.DirectorySnapshot{}

	var fetchedAt int64
	err := s.db.db.QueryRowContext(ctx, `SELECT fetched_at FROM directory_meta WHERE id = 1`).Scan(&fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory meta: %w", err)
	}
	snapshot.FetchedAt = time.Unix(0, fetchedAt).UTC()

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT corp_code, corp_name, corp_eng_name, stock_code, modify_date
		FROM corp_directory
		ORDER BY corp_code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Corporation
		var code string
		if err := rows.Scan(&code, &c.Name, &c.EnglishName, &c.StockCode, &c.ModifyDate); err != nil {
			return nil, fmt.Errorf("failed to scan corporation: %w", err)
		}
		c.CorpCode = models.CorpCode(code)
		snapshot.Corporations = append(snapshot.Corporations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate directory: %w", err)
	}

	return snapshot, nil
}

// GetCorporation looks up one directory entry by code
func (s *DirectoryStorage) GetCorporation(ctx context.Context, corp models.CorpCode) (*models.Corporation, error) {
	c := models.Corporation{CorpCode: corp}
	err := s.db.db.QueryRowContext(ctx, `
		SELECT corp_name, corp_eng_name, stock_code, modify_date FROM corp_directory WHERE corp_code = ?
	`, corp.String()).Scan(&c.Name, &c.EnglishName, &c.StockCode, &c.ModifyDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get corporation %s: %w", corp, err)
	}
	return &c, nil
}
