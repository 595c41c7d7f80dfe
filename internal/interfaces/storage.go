// -----------------------------------------------------------------------
// Storage interfaces for the financial record cache
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/dartseries/internal/models"
)

// ErrRecordNotFound is returned when no cached record exists for a (corp, period) key
var ErrRecordNotFound = errors.New("record not found")

// RecordStorage - cache of normalized quarterly records keyed by (corp, period).
// Records never expire; Delete is the only invalidation path.
type RecordStorage interface {
	// Get returns ErrRecordNotFound on a miss
	Get(ctx context.Context, corp models.CorpCode, period models.FiscalPeriod) (*models.NormalizedRecord, error)
	Put(ctx context.Context, record *models.NormalizedRecord) error

	// GetMany returns only the periods that are cached
	GetMany(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (map[models.FiscalPeriod]models.NormalizedRecord, error)
	// PutMany writes all records in a single transaction
	PutMany(ctx context.Context, records []models.NormalizedRecord) error

	Delete(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (int, error)
	ListCorps(ctx context.Context) ([]models.CorpCode, error)
}

// DirectoryStorage - persisted copy of the corp-code directory
type DirectoryStorage interface {
	// ReplaceDirectory swaps the whole snapshot atomically
	ReplaceDirectory(ctx context.Context, corps []models.Corporation, fetchedAt time.Time) error
	// LoadDirectory returns an empty snapshot (not an error) when nothing was stored yet
	LoadDirectory(ctx context.Context) (*models.DirectorySnapshot, error)
	GetCorporation(ctx context.Context, corp models.CorpCode) (*models.Corporation, error)
}

// ProgressStorage - batch warm-up bookkeeping
type ProgressStorage interface {
	SetStatus(ctx context.Context, status *models.ProcessingStatus) error
	GetStatus(ctx context.Context, corp models.CorpCode) (*models.ProcessingStatus, error)
	// ProcessedCorps returns every corp with a status row, whatever its state
	ProcessedCorps(ctx context.Context) (map[models.CorpCode]models.ProcessingState, error)
	ResetStatus(ctx context.Context) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	RecordStorage() RecordStorage
	DirectoryStorage() DirectoryStorage
	ProgressStorage() ProgressStorage
	DB() interface{}
	Close() error
}
