package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

// CacheEntry is the persisted form of a NormalizedRecord
type CacheEntry struct {
	CorpCode        string
	FiscalYear      int
	Quarter         int
	Revenue         int64
	OperatingProfit int64
	StatementDiv    string
	RetrievedAt     time.Time
}

func recordKey(corp models.CorpCode, period models.FiscalPeriod) string {
	return fmt.Sprintf("%s|%04d|%d", corp, period.Year, period.Quarter)
}

func toEntry(r models.NormalizedRecord) CacheEntry {
	return CacheEntry{
		CorpCode:        r.CorpCode.String(),
		FiscalYear:      r.Period.Year,
		Quarter:         int(r.Period.Quarter),
		Revenue:         r.Revenue,
		OperatingProfit: r.OperatingProfit,
		StatementDiv:    string(r.StatementDiv),
		RetrievedAt:     r.RetrievedAt.UTC(),
	}
}

func (e CacheEntry) toRecord() models.NormalizedRecord {
	return models.NormalizedRecord{
		CorpCode:        models.CorpCode(e.CorpCode),
		Period:          models.FiscalPeriod{Year: e.FiscalYear, Quarter: models.Quarter(e.Quarter)},
		Revenue:         e.Revenue,
		OperatingProfit: e.OperatingProfit,
		StatementDiv:    models.StatementDiv(e.StatementDiv),
		RetrievedAt:     e.RetrievedAt.UTC(),
	}
}

// RecordStorage implements interfaces.RecordStorage for Badger
type RecordStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecordStorage creates a new RecordStorage instance
func NewRecordStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves one cached record
func (s *RecordStorage) Get(ctx context.Context, corp models.CorpCode, period models.FiscalPeriod) (*models.NormalizedRecord, error) {
	var entry CacheEntry
	err := s.db.Store().Get(recordKey(corp, period), &entry)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s %s: %w", corp, period, err)
	}

	record := entry.toRecord()
	return &record, nil
}

// Put inserts or overwrites a single record
func (s *RecordStorage) Put(ctx context.Context, record *models.NormalizedRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	return s.PutMany(ctx, []models.NormalizedRecord{*record})
}

// GetMany returns the cached subset of periods for one company
func (s *RecordStorage) GetMany(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (map[models.FiscalPeriod]models.NormalizedRecord, error) {
	result := make(map[models.FiscalPeriod]models.NormalizedRecord, len(periods))

	err := s.db.Store().Badger().View(func(tx *badgerdb.Txn) error {
		for _, p := range periods {
			var entry CacheEntry
			err := s.db.Store().TxGet(tx, recordKey(corp, p), &entry)
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to get record %s %s: %w", corp, p, err)
			}
			result[p] = entry.toRecord()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// PutMany writes all records in one badger transaction
func (s *RecordStorage) PutMany(ctx context.Context, records []models.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, r := range records {
		if r.CorpCode == "" || !r.Period.Valid() {
			return fmt.Errorf("invalid record key %q %s", r.CorpCode, r.Period)
		}
	}

	err := s.db.update(func(tx *badgerdb.Txn) error {
		for _, r := range records {
			if r.RetrievedAt.IsZero() {
				r.RetrievedAt = time.Now()
			}
			if err := s.db.Store().TxUpsert(tx, recordKey(r.CorpCode, r.Period), toEntry(r)); err != nil {
				return fmt.Errorf("failed to upsert record %s %s: %w", r.CorpCode, r.Period, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().Int("records", len(records)).Msg("Stored financial records")
	return nil
}

// Delete removes the given periods for one company
func (s *RecordStorage) Delete(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (int, error) {
	deleted := 0
	err := s.db.update(func(tx *badgerdb.Txn) error {
		for _, p := range periods {
			key := recordKey(corp, p)
			var existing CacheEntry
			err := s.db.Store().TxGet(tx, key, &existing)
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read record %s %s: %w", corp, p, err)
			}
			if err := s.db.Store().TxDelete(tx, key, CacheEntry{}); err != nil {
				return fmt.Errorf("failed to delete record %s %s: %w", corp, p, err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ListCorps returns every company with at least one cached record
func (s *RecordStorage) ListCorps(ctx context.Context) ([]models.CorpCode, error) {
	var entries []CacheEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	seen := make(map[string]bool)
	var corps []models.CorpCode
	for _, e := range entries {
		if seen[e.CorpCode] {
			continue
		}
		seen[e.CorpCode] = true
		corps = append(corps, models.CorpCode(e.CorpCode))
	}
	sort.Slice(corps, func(i, j int) bool { return corps[i] < corps[j] })
	return corps, nil
}
