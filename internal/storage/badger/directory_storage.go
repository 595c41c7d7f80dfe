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

// directoryBatchSize keeps each transaction well under badger's size limit
const directoryBatchSize = 1000

const directoryMetaKey = "directory"

// DirectoryEntry is one stored corporation, tagged with the snapshot generation it belongs to
type DirectoryEntry struct {
	Generation  int64
	CorpCode    string
	Name        string
	EnglishName string
	StockCode   string
	ModifyDate  string
}

// DirectoryMeta points at the live generation
type DirectoryMeta struct {
	Generation int64
	FetchedAt  time.Time
	Count      int
}

// DirectoryStorage implements interfaces.DirectoryStorage for Badger.
// A replace writes a new generation in batches, then flips the meta pointer,
// so readers only ever see a complete snapshot.
type DirectoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDirectoryStorage creates a new DirectoryStorage instance
func NewDirectoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DirectoryStorage {
	return &DirectoryStorage{
		db:     db,
		logger: logger,
	}
}

func directoryKey(generation int64, corp string) string {
	return fmt.Sprintf("%d|%s", generation, corp)
}

func (s *DirectoryStorage) meta() (*DirectoryMeta, error) {
	var meta DirectoryMeta
	err := s.db.Store().Get(directoryMetaKey, &meta)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory meta: %w", err)
	}
	return &meta, nil
}

// ReplaceDirectory writes a new generation and switches to it
func (s *DirectoryStorage) ReplaceDirectory(ctx context.Context, corps []models.Corporation, fetchedAt time.Time) error {
	previous, err := s.meta()
	if err != nil {
		return err
	}

	generation := time.Now().UnixNano()
	if previous != nil && generation <= previous.Generation {
		generation = previous.Generation + 1
	}

	for start := 0; start < len(corps); start += directoryBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+directoryBatchSize, len(corps))
		err := s.db.update(func(tx *badgerdb.Txn) error {
			for _, c := range corps[start:end] {
				entry := DirectoryEntry{
					Generation:  generation,
					CorpCode:    c.CorpCode.String(),
					Name:        c.Name,
					EnglishName: c.EnglishName,
					StockCode:   c.StockCode,
					ModifyDate:  c.ModifyDate,
				}
				if err := s.db.Store().TxUpsert(tx, directoryKey(generation, entry.CorpCode), entry); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write directory batch: %w", err)
		}
	}

	meta := DirectoryMeta{Generation: generation, FetchedAt: fetchedAt.UTC(), Count: len(corps)}
	if err := s.db.update(func(tx *badgerdb.Txn) error {
		return s.db.Store().TxUpsert(tx, directoryMetaKey, meta)
	}); err != nil {
		return fmt.Errorf("failed to update directory meta: %w", err)
	}

	// Old generations are garbage once the pointer has moved
	if previous != nil {
		if err := s.prune(generation); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to prune old directory generations")
		}
	}

	s.logger.Info().Int("corporations", len(corps)).Msg("Stored corp code directory")
	return nil
}

// prune deletes entries of every generation except live, in bounded batches
func (s *DirectoryStorage) prune(live int64) error {
	var stale []DirectoryEntry
	if err := s.db.Store().Find(&stale, badgerhold.Where("Generation").Ne(live)); err != nil {
		return err
	}

	for start := 0; start < len(stale); start += directoryBatchSize {
		end := min(start+directoryBatchSize, len(stale))
		err := s.db.update(func(tx *badgerdb.Txn) error {
			for _, e := range stale[start:end] {
				err := s.db.Store().TxDelete(tx, directoryKey(e.Generation, e.CorpCode), DirectoryEntry{})
				if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadDirectory reads the live generation
func (s *DirectoryStorage) LoadDirectory(ctx context.Context) (*models.DirectorySnapshot, error) {
	snapshot := &models.DirectorySnapshot{}

	meta, err := s.meta()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return snapshot, nil
	}
	snapshot.FetchedAt = meta.FetchedAt

	var entries []DirectoryEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("Generation").Eq(meta.Generation)); err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	snapshot.Corporations = make([]models.Corporation, 0, len(entries))
	for _, e := range entries {
		snapshot.Corporations = append(snapshot.Corporations, e.toCorporation())
	}
	sort.Slice(snapshot.Corporations, func(i, j int) bool {
		return snapshot.Corporations[i].CorpCode < snapshot.Corporations[j].CorpCode
	})

	return snapshot, nil
}

// GetCorporation looks up one entry of the live generation
func (s *DirectoryStorage) GetCorporation(ctx context.Context, corp models.CorpCode) (*models.Corporation, error) {
	meta, err := s.meta()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, interfaces.ErrRecordNotFound
	}

	var entry DirectoryEntry
	err = s.db.Store().Get(directoryKey(meta.Generation, corp.String()), &entry)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get corporation %s: %w", corp, err)
	}

	c := entry.toCorporation()
	return &c, nil
}

func (e DirectoryEntry) toCorporation() models.Corporation {
	return models.Corporation{
		CorpCode:    models.CorpCode(e.CorpCode),
		Name:        e.Name,
		EnglishName: e.EnglishName,
		StockCode:   e.StockCode,
		ModifyDate:  e.ModifyDate,
	}
}
