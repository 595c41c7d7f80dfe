// Package memory is a process-local storage backend used by tests and one-shot CLI runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

type recordKey struct {
	corp   models.CorpCode
	period models.FiscalPeriod
}

// Manager keeps every store in maps behind a single lock
type Manager struct {
	mu        sync.RWMutex
	records   map[recordKey]models.NormalizedRecord
	directory models.DirectorySnapshot
	status    map[models.CorpCode]models.ProcessingStatus
	logger    arbor.ILogger
}

// NewManager creates an empty in-memory storage manager
func NewManager(logger arbor.ILogger) interfaces.StorageManager {
	return &Manager{
		records: make(map[recordKey]models.NormalizedRecord),
		status:  make(map[models.CorpCode]models.ProcessingStatus),
		logger:  logger,
	}
}

func (m *Manager) RecordStorage() interfaces.RecordStorage       { return (*recordStore)(m) }
func (m *Manager) DirectoryStorage() interfaces.DirectoryStorage { return (*directoryStore)(m) }
func (m *Manager) ProgressStorage() interfaces.ProgressStorage   { return (*progressStore)(m) }
func (m *Manager) DB() interface{}                               { return nil }
func (m *Manager) Close() error                                  { return nil }

type recordStore Manager

func (s *recordStore) Get(ctx context.Context, corp models.CorpCode, period models.FiscalPeriod) (*models.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[recordKey{corp, period}]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return &r, nil
}

func (s *recordStore) Put(ctx context.Context, record *models.NormalizedRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	return s.PutMany(ctx, []models.NormalizedRecord{*record})
}

func (s *recordStore) GetMany(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (map[models.FiscalPeriod]models.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[models.FiscalPeriod]models.NormalizedRecord, len(periods))
	for _, p := range periods {
		if r, ok := s.records[recordKey{corp, p}]; ok {
			result[p] = r
		}
	}
	return result, nil
}

func (s *recordStore) PutMany(ctx context.Context, records []models.NormalizedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range records {
		if r.CorpCode == "" || !r.Period.Valid() {
			return fmt.Errorf("invalid record key %q %s", r.CorpCode, r.Period)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.RetrievedAt.IsZero() {
			r.RetrievedAt = time.Now().UTC()
		}
		s.records[recordKey{r.CorpCode, r.Period}] = r
	}
	return nil
}

func (s *recordStore) Delete(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, p := range periods {
		k := recordKey{corp, p}
		if _, ok := s.records[k]; ok {
			delete(s.records, k)
			deleted++
		}
	}
	return deleted, nil
}

func (s *recordStore) ListCorps(ctx context.Context) ([]models.CorpCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[models.CorpCode]bool)
	var corps []models.CorpCode
	for k := range s.records {
		if !seen[k.corp] {
			seen[k.corp] = true
			corps = append(corps, k.corp)
		}
	}
	sort.Slice(corps, func(i, j int) bool { return corps[i] < corps[j] })
	return corps, nil
}

type directoryStore Manager

func (s *directoryStore) ReplaceDirectory(ctx context.Context, corps []models.Corporation, fetchedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := models.DirectorySnapshot{
		Corporations: append([]models.Corporation(nil), corps...),
		FetchedAt:    fetchedAt.UTC(),
	}
	sort.Slice(snapshot.Corporations, func(i, j int) bool {
		return snapshot.Corporations[i].CorpCode < snapshot.Corporations[j].CorpCode
	})

	s.mu.Lock()
	s.directory = snapshot
	s.mu.Unlock()
	return nil
}

func (s *directoryStore) LoadDirectory(ctx context.Context) (*models.DirectorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &models.DirectorySnapshot{
		Corporations: append([]models.Corporation(nil), s.directory.Corporations...),
		FetchedAt:    s.directory.FetchedAt,
	}, nil
}

func (s *directoryStore) GetCorporation(ctx context.Context, corp models.CorpCode) (*models.Corporation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	corps := s.directory.Corporations
	i := sort.Search(len(corps), func(i int) bool { return corps[i].CorpCode >= corp })
	if i < len(corps) && corps[i].CorpCode == corp {
		c := corps[i]
		return &c, nil
	}
	return nil, interfaces.ErrRecordNotFound
}

type progressStore Manager

func (s *progressStore) SetStatus(ctx context.Context, status *models.ProcessingStatus) error {
	st := *status
	if st.ProcessedAt.IsZero() {
		st.ProcessedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.status[st.CorpCode] = st
	s.mu.Unlock()
	return nil
}

func (s *progressStore) GetStatus(ctx context.Context, corp models.CorpCode) (*models.ProcessingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.status[corp]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return &st, nil
}

func (s *progressStore) ProcessedCorps(ctx context.Context) (map[models.CorpCode]models.ProcessingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[models.CorpCode]models.ProcessingState, len(s.status))
	for corp, st := range s.status {
		result[corp] = st.State
	}
	return result, nil
}

func (s *progressStore) ResetStatus(ctx context.Context) error {
	s.mu.Lock()
	s.status = make(map[models.CorpCode]models.ProcessingStatus)
	s.mu.Unlock()
	return nil
}
