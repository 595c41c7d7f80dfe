// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

// Factory opens a fresh, empty storage manager for one test.
type Factory func(t *testing.T) interfaces.StorageManager

// Record builds a test record with a fixed retrieval time.
func Record(corp models.CorpCode, year int, q models.Quarter, revenue, op int64) models.NormalizedRecord {
	return models.NormalizedRecord{
		CorpCode:        corp,
		Period:          models.FiscalPeriod{Year: year, Quarter: q},
		Revenue:         revenue,
		OperatingProfit: op,
		StatementDiv:    models.StatementConsolidated,
		RetrievedAt:     time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC),
	}
}

// Run executes the full conformance suite against a backend.
func Run(t *testing.T, open Factory) {
	t.Run("RecordRoundTrip", func(t *testing.T) { testRecordRoundTrip(t, open(t)) })
	t.Run("RecordMiss", func(t *testing.T) { testRecordMiss(t, open(t)) })
	t.Run("RecordOverwrite", func(t *testing.T) { testRecordOverwrite(t, open(t)) })
	t.Run("GetManyReturnsCachedSubset", func(t *testing.T) { testGetMany(t, open(t)) })
	t.Run("DeleteAndListCorps", func(t *testing.T) { testDeleteAndList(t, open(t)) })
	t.Run("ConcurrentPutMany", func(t *testing.T) { testConcurrentPutMany(t, open(t)) })
	t.Run("DirectoryReplace", func(t *testing.T) { testDirectory(t, open(t)) })
	t.Run("ProgressStatus", func(t *testing.T) { testProgress(t, open(t)) })
}

func testRecordRoundTrip(t *testing.T, m interfaces.StorageManager) {
	defer m.Close()
	ctx := context.Background()
	store := m.RecordStorage()

	r := Record("00126380", 2023, models.Q4, 67_779_900_000_000, 2_825_000_000_000)
	r.OperatingProfit = -r.OperatingProfit // negative values survive
	require.NoError(t, store.Put(ctx, &r))

	got, err := store.Get(ctx, r.CorpCode, r.Period)
	require.NoError(t, err)
	assert.True(t, got.SameFigures(r), "got %+v want %+v", got, r)
	assert.True(t, got.RetrievedAt.Equal(r.RetrievedAt))
}

func testRecordMiss(t *testing.T, m interfaces.StorageManager) {
	defer m.Close()
	ctx := context.Background()

	_, err := m.RecordStorage().Get(ctx, "00000001", models.FiscalPeriod{Year: 2020, Quarter: models.Q1})
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	got, err := m.RecordStorage().GetMany(ctx, "00000001", []models.FiscalPeriod{{Year: 2020, Quarter: models.Q1}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testRecordOverwrite(t *testing.T, m interfaces.StorageManager) {
	defer m.Close()
	ctx := context.Background()
	store := m.RecordStorage()

	r := Record("00126380", 2024, models.Q1, 100, 10)
	require.NoError(t, store.Put(ctx, &r))

	r.Revenue = 120
	r.StatementDiv = models.StatementSeparate
	require.NoError(t, store.Put(ctx, &r))

	got, err := store.Get(ctx, r.CorpCode, r.Period)
	require.NoError(t, err)
	assert.Equal(t, int64(120), got.Revenue)
	assert.Equal(t, models.StatementSeparate, got.StatementDiv)
}

func testGetMany(t *testing.T, m interfaces.StorageManager) {
	defer m.Close()
	ctx := context.Background()
	store := m.RecordStorage()

	records := []models.NormalizedRecord{
		Record("00126380", 2023, models.Q3, 300, 30),
		Record("00126380", 2023, models.Q4, 400, 40),
		Record("00126380", 2024, models.Q1, 500, 50),
		Record("00164779", 2023, models.Q4, 999, 99),
	}
	require.NoError(t, store.PutMany(ctx, records))

	periods := []models.FiscalPeriod{
		{Year: 2023, Quarter: models.Q2},
		{Year: 2023, Quarter: models.Q4},
		{Year: 2024, Quarter: models.Q1},
	}
	got, err := store.GetMany(ctx, "00126380", periods)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, int64(400), got[models.FiscalPeriod{Year: 2023, Quarter: models.Q4}].Revenue)
	assert.Equal(t, int64(500), got[models.FiscalPeriod{Year: 2024, Quarter: models.Q1}].Revenue)
	_, hasQ3 := got[models.FiscalPeriod{Year: 2023, Quarter: models.Q3}]
	assert.False(t, hasQ3, "unrequested periods must not be returned")
}

func testDeleteAndList(t *testing.T, m interfaces.StorageManager) {
	defer m.Close()
	ctx := context.Background()
	store := m.RecordStorage()

	require.NoError(t, store.PutMany(ctx, []models.NormalizedRecord{
		Record("00126380", 2023, models.Q3, 1, 1),
		Record("00126380", 2023, models.Q4, 1, 1),
		Record("00164779", 2023, models.Q4, 1, 1),
	}))

	corps, err := store.ListCorps(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.CorpCode{"00126380", "00164779"}, corps)

	n, err := store.Delete(ctx, "00126380", []models.FiscalPeriod{
		{Year: 2023, Quarter: models.Q3},
		{Year: 2023, Quarter: models.Q4},
		{Year: 2022, Quarter: models.Q1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Get(ctx, "00126380", models.FiscalPeriod{Year: 2023, Quarter: models.Q4})
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	corps, err = store.ListCorps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CorpCode{"00164779"}, corps)
}

func testConcurrentPutMany(t *testing.T, m interfaces.StorageManager) {
	defer m.Close()
	ctx := context.Background()
	store := m.RecordStorage()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for year := 2016; year < 2024; year++ {
		wg.Add(1)
		go func(year int) {
			defer wg.Done()
			var batch []models.NormalizedRecord
			for _, q := range models.Quarters {
				batch = append(batch, Record("00126380", year, q, int64(year), int64(q)))
			}
			errs <- store.PutMany(ctx, batch)
		}(year)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var periods []models.FiscalPeriod
	for year := 2016; year < 2024; year++ {
		for _, q := range models.Quarters {
			periods = append(periods, models.FiscalPeriod{Year: year, Quarter: q})
		}
	}
	got, err := store.GetMany(ctx, "00126380", periods)
	require.NoError(t, err)
	assert.Len(t, got, 32)
}

func testDirectory(t *testing.T, m interfaces.StorageManager) {
	defer m.Close()
	ctx := context.Background()
	dir := m.DirectoryStorage()

	empty, err := dir.LoadDirectory(ctx)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.True(t, empty.FetchedAt.IsZero())

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, dir.ReplaceDirectory(ctx, []models.Corporation{
		{CorpCode: "00126380", Name: "삼성전자", StockCode: "005930", ModifyDate: "20240326"},
		{CorpCode: "00434003", Name: "다코", ModifyDate: "20170630"},
	}, first))

	second := first.Add(48 * time.Hour)
	require.NoError(t, dir.ReplaceDirectory(ctx, []models.Corporation{
		{CorpCode: "00126380", Name: "삼성전자", StockCode: "005930", ModifyDate: "20250101"},
	}, second))

	snap, err := dir.LoadDirectory(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Corporations, 1, "replace drops entries missing from the new snapshot")
	assert.Equal(t, "20250101", snap.Corporations[0].ModifyDate)
	assert.True(t, snap.FetchedAt.Equal(second))

	c, err := dir.GetCorporation(ctx, "00126380")
	require.NoError(t, err)
	assert.Equal(t, "삼성전자", c.Name)

	_, err = dir.GetCorporation(ctx, "00434003")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func testProgress(t *testing.T, m interfaces.StorageManager) {
	defer m.Close()
	ctx := context.Background()
	progress := m.ProgressStorage()

	_, err := progress.GetStatus(ctx, "00126380")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	require.NoError(t, progress.SetStatus(ctx, &models.ProcessingStatus{
		CorpCode: "00126380", State: models.ProcessingFailed, Message: "upstream unavailable",
	}))
	require.NoError(t, progress.SetStatus(ctx, &models.ProcessingStatus{
		CorpCode: "00126380", State: models.ProcessingDone,
	}))
	require.NoError(t, progress.SetStatus(ctx, &models.ProcessingStatus{
		CorpCode: "00164779", State: models.ProcessingFailed, Message: "no disclosure",
	}))

	st, err := progress.GetStatus(ctx, "00126380")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingDone, st.State)
	assert.False(t, st.ProcessedAt.IsZero())

	all, err := progress.ProcessedCorps(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.CorpCode]models.ProcessingState{
		"00126380": models.ProcessingDone,
		"00164779": models.ProcessingFailed,
	}, all)

	require.NoError(t, progress.ResetStatus(ctx))
	all, err = progress.ProcessedCorps(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
