package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

// progressEntry is the persisted batch status of one company
type progressEntry struct {
	CorpCode    string
	State       string
	Message     string
	ProcessedAt time.Time
}

// ProgressStorage implements interfaces.ProgressStorage for Badger
type ProgressStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProgressStorage creates a new ProgressStorage instance
func NewProgressStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProgressStorage {
	return &ProgressStorage{
		db:     db,
		logger: logger,
	}
}

// SetStatus inserts or updates the status for one company
func (s *ProgressStorage) SetStatus(ctx context.Context, status *models.ProcessingStatus) error {
	entry := progressEntry{
		CorpCode:    status.CorpCode.String(),
		State:       string(status.State),
		Message:     status.Message,
		ProcessedAt: status.ProcessedAt.UTC(),
	}
	if status.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	if err := s.db.Store().Upsert(entry.CorpCode, entry); err != nil {
		return fmt.Errorf("failed to set status for %s: %w", status.CorpCode, err)
	}
	return nil
}

// GetStatus returns interfaces.ErrRecordNotFound when the company was never processed
func (s *ProgressStorage) GetStatus(ctx context.Context, corp models.CorpCode) (*models.ProcessingStatus, error) {
	var entry progressEntry
	err := s.db.Store().Get(corp.String(), &entry)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status for %s: %w", corp, err)
	}

	return &models.ProcessingStatus{
		CorpCode:    corp,
		State:       models.ProcessingState(entry.State),
		Message:     entry.Message,
		ProcessedAt: entry.ProcessedAt,
	}, nil
}

// ProcessedCorps returns the state of every company with a status entry
func (s *ProgressStorage) ProcessedCorps(ctx context.Context) (map[models.CorpCode]models.ProcessingState, error) {
	var entries []progressEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to list processing status: %w", err)
	}

	result := make(map[models.CorpCode]models.ProcessingState, len(entries))
	for _, e := range entries {
		result[models.CorpCode(e.CorpCode)] = models.ProcessingState(e.State)
	}
	return result, nil
}

// ResetStatus clears all bookkeeping
func (s *ProgressStorage) ResetStatus(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&progressEntry{}, nil); err != nil {
		return fmt.Errorf("failed to reset processing status: %w", err)
	}
	return nil
}
