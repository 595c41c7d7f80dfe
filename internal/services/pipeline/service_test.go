package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/metrics"
	"github.com/ternarybob/dartseries/internal/models"
	"github.com/ternarybob/dartseries/internal/services/planner"
	"github.com/ternarybob/dartseries/internal/storage/memory"
)

const samsung models.CorpCode = "00126380"

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeResolver struct {
	calls int
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, name string) (models.Corporation, error) {
	f.calls++
	if f.err != nil {
		return models.Corporation{}, f.err
	}
	return models.Corporation{CorpCode: samsung, Name: "삼성전자", StockCode: "005930"}, nil
}

func (f *fakeResolver) Search(ctx context.Context, name string, limit int) ([]models.Candidate, error) {
	return nil, nil
}

func (f *fakeResolver) RefreshDirectory(ctx context.Context) (int, error) {
	return 0, nil
}

// fakeFetcher serves a full year of filings unless told otherwise
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[int]int
	errs    map[int]error
	skip    map[int]models.ReportScope // scope left unfiled per year
	revenue int64

	// gate, when set, holds every fetch until closed; started is signalled on entry
	gate    chan struct{}
	started chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:   make(map[int]int),
		errs:    make(map[int]error),
		skip:    make(map[int]models.ReportScope),
		revenue: 1000,
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, corp models.CorpCode, year int) ([]models.RawLineItem, error) {
	if f.gate != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, models.NewError(models.ErrorUpstreamUnavailable, "statements.Fetch", "request cancelled", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[year]++
	if err := f.errs[year]; err != nil {
		return nil, err
	}

	// Standalone quarter q has revenue base+q and operating profit 10*q; filings are cumulative
	var items []models.RawLineItem
	var rev, op int64
	for i, scope := range models.ReportScopes {
		q := int64(i + 1)
		rev += f.revenue + q
		op += 10 * q
		if f.skip[year] == scope {
			continue
		}
		items = append(items,
			models.RawLineItem{CorpCode: corp, FiscalYear: year, Scope: scope, Account: models.AccountRevenue, Amount: rev, StatementDiv: models.StatementConsolidated},
			models.RawLineItem{CorpCode: corp, FiscalYear: year, Scope: scope, Account: models.AccountOperatingProfit, Amount: op, StatementDiv: models.StatementConsolidated},
		)
	}
	return items, nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newService(resolver interfaces.IdentifierResolver, fetcher interfaces.StatementFetcher, records interfaces.RecordStorage) *Service {
	return NewService(resolver, fetcher, records, arbor.NewLogger(),
		WithClock(func() time.Time { return testNow }),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
}

func TestGetSeries_ColdThenCached(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	svc := newService(&fakeResolver{}, fetcher, store)
	ctx := context.Background()

	series, err := svc.GetSeries(ctx, "삼성전자", "202409")
	require.NoError(t, err)
	require.Len(t, series.Entries, 16)
	assert.Equal(t, samsung, series.CorpCode)
	assert.Equal(t, "삼성전자", series.CompanyName)
	assert.Equal(t, 16, series.CompleteCount())
	assert.Equal(t, 5, fetcher.totalCalls(), "one call per fiscal year")

	planned, _ := planner.Plan("202409")
	for i, e := range series.Entries {
		assert.Equal(t, planned[i], e.Period)
		assert.False(t, e.Cached)
		require.NotNil(t, e.Record)
		assert.Equal(t, 1000+int64(e.Period.Quarter), e.Record.Revenue)
		assert.Equal(t, 10*int64(e.Period.Quarter), e.Record.OperatingProfit)
		assert.True(t, e.Record.RetrievedAt.Equal(testNow))
	}

	// Fully cached: zero upstream calls
	again, err := svc.GetSeries(ctx, "삼성전자", "202409")
	require.NoError(t, err)
	assert.Equal(t, 5, fetcher.totalCalls())
	for i, e := range again.Entries {
		assert.True(t, e.Cached)
		assert.True(t, e.Record.SameFigures(*series.Entries[i].Record))
	}
}

func TestGetSeries_FetchesOnlyMissingYears(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	ctx := context.Background()

	planned, _ := planner.Plan("202409")
	var warm []models.NormalizedRecord
	for _, p := range planned {
		if p.Year != 2022 {
			warm = append(warm, models.NormalizedRecord{CorpCode: samsung, Period: p, Revenue: 1, OperatingProfit: 1, StatementDiv: models.StatementConsolidated})
		}
	}
	require.NoError(t, store.PutMany(ctx, warm))

	fetcher := newFakeFetcher()
	series, err := newService(&fakeResolver{}, fetcher, store).GetSeries(ctx, "삼성전자", "202409")
	require.NoError(t, err)

	assert.Equal(t, map[int]int{2022: 1}, fetcher.calls)
	for _, e := range series.Entries {
		assert.Equal(t, e.Period.Year != 2022, e.Cached, "period %s", e.Period)
	}

	// Cached values are never overwritten by the default path
	got, err := store.Get(ctx, samsung, models.FiscalPeriod{Year: 2023, Quarter: models.Q1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Revenue)
}

func TestGetSeries_PartialFailure(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	fetcher.errs[2022] = models.NewError(models.ErrorUpstreamUnavailable, "statements.Fetch", "upstream service unavailable", errors.New("503"))
	ctx := context.Background()

	series, err := newService(&fakeResolver{}, fetcher, store).GetSeries(ctx, "삼성전자", "202409")
	require.NoError(t, err, "a failed year never fails the whole request")
	require.Len(t, series.Entries, 16)

	for _, e := range series.Entries {
		if e.Period.Year == 2022 {
			assert.True(t, e.Incomplete)
			assert.Nil(t, e.Record)
			assert.Equal(t, models.ErrorUpstreamUnavailable, e.Reason)
			continue
		}
		assert.False(t, e.Incomplete, "period %s", e.Period)
	}
	assert.Equal(t, 12, series.CompleteCount())

	// Failed periods are not cached and are retried next time
	_, err = store.Get(ctx, samsung, models.FiscalPeriod{Year: 2022, Quarter: models.Q2})
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	delete(fetcher.errs, 2022)
	series, err = newService(&fakeResolver{}, fetcher, store).GetSeries(ctx, "삼성전자", "202409")
	require.NoError(t, err)
	assert.Equal(t, 16, series.CompleteCount())
	assert.Equal(t, 2, fetcher.calls[2022])
	assert.Equal(t, 1, fetcher.calls[2023])
}

func TestGetSeries_MissingBaselineIsIncomplete(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	fetcher.skip[2023] = models.ScopeThreeQuarterCumulative

	series, err := newService(&fakeResolver{}, fetcher, store).GetSeries(context.Background(), "삼성전자", "202409")
	require.NoError(t, err)

	byPeriod := make(map[models.FiscalPeriod]models.SeriesEntry)
	for _, e := range series.Entries {
		byPeriod[e.Period] = e
	}

	for _, q := range []models.Quarter{models.Q3, models.Q4} {
		e := byPeriod[models.FiscalPeriod{Year: 2023, Quarter: q}]
		assert.True(t, e.Incomplete, "2023 Q%d", q)
		assert.Equal(t, models.ErrorIncompleteData, e.Reason)
		assert.Contains(t, e.Detail, string(models.ScopeThreeQuarterCumulative))
	}
	assert.False(t, byPeriod[models.FiscalPeriod{Year: 2023, Quarter: models.Q2}].Incomplete)
	assert.Equal(t, 14, series.CompleteCount())
}

func TestGetSeries_NotYetDue(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	fetcher.errs[2025] = models.NewError(models.ErrorNoDisclosure, "statements.Fetch", "no statements", nil)

	svc := NewService(&fakeResolver{}, fetcher, store, arbor.NewLogger(),
		WithClock(func() time.Time { return time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC) }))

	series, err := svc.GetSeries(context.Background(), "삼성전자", "202503")
	require.NoError(t, err)

	last := series.Entries[len(series.Entries)-1]
	assert.Equal(t, models.FiscalPeriod{Year: 2025, Quarter: models.Q1}, last.Period)
	assert.True(t, last.Incomplete)
	assert.Equal(t, models.ErrorNoDisclosure, last.Reason)
	assert.Contains(t, last.Detail, "not yet due (deadline 2025-05-15)")
}

func TestGetSeries_TopLevelFailures(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		resolver  *fakeResolver
		kind      models.ErrorKind
		resolved  bool
	}{
		{name: "bad period", reference: "2024-09", resolver: &fakeResolver{}, kind: models.ErrorInvalidInput},
		{name: "not found", reference: "202409", resolver: &fakeResolver{err: models.NewError(models.ErrorNotFound, "resolver.Resolve", "no match", nil)}, kind: models.ErrorNotFound, resolved: true},
		{name: "ambiguous", reference: "202409", resolver: &fakeResolver{err: models.NewAmbiguousError("resolver.Resolve", "동명기업", []string{"a", "b"})}, kind: models.ErrorAmbiguous, resolved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher()
			svc := newService(tt.resolver, fetcher, memory.NewManager(arbor.NewLogger()).RecordStorage())

			series, err := svc.GetSeries(context.Background(), "삼성전자", tt.reference)
			require.Error(t, err)
			assert.Nil(t, series)
			assert.Equal(t, tt.kind, models.KindOf(err))
			assert.Equal(t, tt.resolved, tt.resolver.calls > 0)
			assert.Zero(t, fetcher.totalCalls())
		})
	}
}

// failingStore fails every read and write
type failingStore struct {
	interfaces.RecordStorage
}

func (failingStore) GetMany(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (map[models.FiscalPeriod]models.NormalizedRecord, error) {
	return nil, errors.New("disk I/O error")
}

func (failingStore) PutMany(ctx context.Context, records []models.NormalizedRecord) error {
	return errors.New("disk I/O error")
}

func TestGetSeries_CacheFailureDegradesToFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	series, err := newService(&fakeResolver{}, fetcher, failingStore{}).GetSeries(context.Background(), "삼성전자", "202409")
	require.NoError(t, err)
	assert.Equal(t, 16, series.CompleteCount())
	assert.Equal(t, 5, fetcher.totalCalls())
}

func TestRefresh_OverwritesRestatedFigures(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	ctx := context.Background()

	svc := newService(&fakeResolver{}, fetcher, store)
	_, err := svc.GetSeries(ctx, "삼성전자", "202409")
	require.NoError(t, err)

	// The company restates: every quarter's revenue rises by 500
	fetcher.revenue = 1500
	fetcher.skip[2021] = models.ScopeQ1Single

	series, err := svc.Refresh(ctx, "삼성전자", "202409")
	require.NoError(t, err)
	assert.Equal(t, 10, fetcher.totalCalls())

	for _, e := range series.Entries {
		assert.False(t, e.Cached)
		if e.Period.Year == 2021 && e.Period.Quarter <= models.Q2 {
			assert.True(t, e.Incomplete, "period %s", e.Period)
			continue
		}
		require.NotNil(t, e.Record, "period %s", e.Period)
		assert.Equal(t, 1500+int64(e.Period.Quarter), e.Record.Revenue)
	}

	got, err := store.Get(ctx, samsung, models.FiscalPeriod{Year: 2024, Quarter: models.Q1})
	require.NoError(t, err)
	assert.Equal(t, int64(1501), got.Revenue)

	// Withdrawn figures are removed rather than served stale
	_, err = store.Get(ctx, samsung, models.FiscalPeriod{Year: 2021, Quarter: models.Q1})
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestRefresh_KeepsCacheOnUpstreamFailure(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	ctx := context.Background()

	svc := newService(&fakeResolver{}, fetcher, store)
	_, err := svc.GetSeries(ctx, "삼성전자", "202409")
	require.NoError(t, err)

	fetcher.errs[2023] = models.NewError(models.ErrorRateLimited, "statements.Fetch", "upstream rate limit", nil)
	series, err := svc.Refresh(ctx, "삼성전자", "202409")
	require.NoError(t, err)
	assert.Equal(t, 12, series.CompleteCount())

	_, err = store.Get(ctx, samsung, models.FiscalPeriod{Year: 2023, Quarter: models.Q4})
	assert.NoError(t, err, "an outage during refresh keeps the previous figures")
}

func TestGetSeries_CancelledContext(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(&fakeResolver{}, newFakeFetcher(), store).GetSeries(ctx, "삼성전자", "202409")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	corps, err := store.ListCorps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, corps, "a cancelled request writes nothing")
}

func TestGetSeries_ConcurrentRequestsShareYearFetches(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	svc := newService(&fakeResolver{}, fetcher, store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			series, err := svc.GetSeries(context.Background(), "삼성전자", "202409")
			assert.NoError(t, err)
			assert.Equal(t, 16, series.CompleteCount())
		}()
	}
	wg.Wait()

	for year, calls := range fetcher.calls {
		assert.LessOrEqual(t, calls, 8, "year %d", year)
	}
}

func TestGetSeries_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	fetcher.started = make(chan struct{}, 1)
	svc := newService(&fakeResolver{}, fetcher, store)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.GetSeries(ctxA, "삼성전자", "202409")
		errA <- err
	}()
	<-fetcher.started

	type result struct {
		series *models.Series
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		series, err := svc.GetSeries(context.Background(), "삼성전자", "202409")
		resB <- result{series, err}
	}()

	// Let the second caller join the in-flight year fetches before the first gives up
	time.Sleep(50 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(fetcher.gate)

	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, 16, r.series.CompleteCount())
		for _, e := range r.series.Entries {
			assert.NotEqual(t, models.ErrorUpstreamUnavailable, e.Reason, "period %s", e.Period)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
}

func TestRefresh_KeepsCacheOnNonDisclosureFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid input", models.NewError(models.ErrorInvalidInput, "statements.Fetch", "status 100", nil)},
		{"internal", errors.New("decode failure")},
		{"upstream", models.NewError(models.ErrorUpstreamUnavailable, "statements.Fetch", "status 800", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewManager(arbor.NewLogger()).RecordStorage()
			fetcher := newFakeFetcher()
			ctx := context.Background()

			svc := newService(&fakeResolver{}, fetcher, store)
			_, err := svc.GetSeries(ctx, "삼성전자", "202409")
			require.NoError(t, err)

			fetcher.errs[2022] = tt.err
			_, err = svc.Refresh(ctx, "삼성전자", "202409")
			require.NoError(t, err)

			_, err = store.Get(ctx, samsung, models.FiscalPeriod{Year: 2022, Quarter: models.Q3})
			assert.NoError(t, err, "cached figures survive a %s failure", tt.name)
		})
	}
}

func TestRefresh_DeletesNoLongerDisclosedYear(t *testing.T) {
	store := memory.NewManager(arbor.NewLogger()).RecordStorage()
	fetcher := newFakeFetcher()
	ctx := context.Background()

	svc := newService(&fakeResolver{}, fetcher, store)
	_, err := svc.GetSeries(ctx, "삼성전자", "202409")
	require.NoError(t, err)

	fetcher.errs[2022] = models.NewError(models.ErrorNoDisclosure, "statements.Fetch", "status 013", nil)
	_, err = svc.Refresh(ctx, "삼성전자", "202409")
	require.NoError(t, err)

	_, err = store.Get(ctx, samsung, models.FiscalPeriod{Year: 2022, Quarter: models.Q3})
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}
