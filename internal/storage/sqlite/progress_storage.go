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

// ProgressStorage implements interfaces.ProgressStorage on processing_status
type ProgressStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewProgressStorage creates a new ProgressStorage instance
func NewProgressStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ProgressStorage {
	return &ProgressStorage{
		db:     db,
		logger: logger,
	}
}

// SetStatus inserts or updates the status row for one company
func (s *ProgressStorage) SetStatus(ctx context.Context, status *models.ProcessingStatus) error {
	processedAt := status.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO processing_status (corp_code, state, message, processed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(corp_code) DO UPDATE SET
				state = excluded.state,
				message = excluded.message,
				processed_at = excluded.processed_at
		`, status.CorpCode.String(), string(status.State), status.Message, processedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to set status for %s: %w", status.CorpCode, err)
		}
		return nil
	})
}

// GetStatus returns interfaces.ErrRecordNotFound when the company was never processed
func (s *ProgressStorage) GetStatus(ctx context.Context, corp models.CorpCode) (*models.ProcessingStatus, error) {
	status := models.ProcessingStatus{CorpCode: corp}
	var state string
	var processedAt int64

	err := s.db.db.QueryRowContext(ctx,
		`SELECT state, message, processed_at FROM processing_status WHERE corp_code = ?`, corp.String()).
		Scan(&state, &status.Message, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status for %s: %w", corp, err)
	}

	status.State = models.ProcessingState(state)
	status.ProcessedAt = time.Unix(0, processedAt).UTC()
	return &status, nil
}

// ProcessedCorps returns the state of every company with a status row
func (s *ProgressStorage) ProcessedCorps(ctx context.Context) (map[models.CorpCode]models.ProcessingState, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT corp_code, state FROM processing_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing status: %w", err)
	}
	defer rows.Close()

	result := make(map[models.CorpCode]models.ProcessingState)
	for rows.Next() {
		var code, state string
		if err := rows.Scan(&code, &state); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		result[models.CorpCode(code)] = models.ProcessingState(state)
	}
	return result, rows.Err()
}

// ResetStatus clears all bookkeeping so the next warm run starts over
func (s *ProgressStorage) ResetStatus(ctx context.Context) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM processing_status`); err != nil {
			return fmt.Errorf("failed to reset processing status: %w", err)
		}
		return nil
	})
}
