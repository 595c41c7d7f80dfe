// -----------------------------------------------------------------------
// Package pipeline orchestrates resolve, plan, cache lookup, fetch and
// normalization into one ordered quarterly series.
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/metrics"
	"github.com/ternarybob/dartseries/internal/models"
	"github.com/ternarybob/dartseries/internal/services/normalizer"
	"github.com/ternarybob/dartseries/internal/services/planner"
)

const defaultMaxConcurrentYears = 4

// sharedFetchTimeout bounds a year fetch that has outlived the caller that started it
const sharedFetchTimeout = 5 * time.Minute

// Service implements interfaces.SeriesService.
type Service struct {
	resolver interfaces.IdentifierResolver
	fetcher  interfaces.StatementFetcher
	records  interfaces.RecordStorage
	metrics  *metrics.Metrics
	logger   arbor.ILogger

	maxConcurrentYears int
	now                func() time.Time

	// years collapses concurrent fetches of the same company-year
	years singleflight.Group
}

var _ interfaces.SeriesService = (*Service)(nil)

// Option configures a Service
type Option func(*Service)

// WithMaxConcurrentYears bounds the per-request fiscal-year fan-out.
func WithMaxConcurrentYears(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrentYears = n
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the series pipeline.
func NewService(resolver interfaces.IdentifierResolver, fetcher interfaces.StatementFetcher, records interfaces.RecordStorage, logger arbor.ILogger, opts ...Option) *Service {
	s := &Service{
		resolver:           resolver,
		fetcher:            fetcher,
		records:            records,
		logger:             logger,
		maxConcurrentYears: defaultMaxConcurrentYears,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSeries returns the trailing quarterly series ending at the quarter of referenceYYYYMM.
// Cached periods are served without any upstream call; only misses are fetched and stored.
func (s *Service) GetSeries(ctx context.Context, companyName, referenceYYYYMM string) (*models.Series, error) {
	return s.run(ctx, "get_series", companyName, referenceYYYYMM, false)
}

// Refresh re-fetches every planned period, overwriting cached figures with the
// latest filings. Cached periods that are no longer disclosed are deleted.
func (s *Service) Refresh(ctx context.Context, companyName, referenceYYYYMM string) (*models.Series, error) {
	return s.run(ctx, "refresh", companyName, referenceYYYYMM, true)
}

// yearOutcome is the fetch result of one fiscal year
type yearOutcome struct {
	result normalizer.Result
	err    error
}

func (s *Service) run(ctx context.Context, op, companyName, referenceYYYYMM string, refresh bool) (*models.Series, error) {
	logger, requestID := common.RequestLogger(s.logger)

	periods, err := planner.Plan(referenceYYYYMM)
	if err != nil {
		s.metrics.IncrementRequest(op, string(models.KindOf(err)))
		return nil, err
	}

	corp, err := s.resolver.Resolve(ctx, companyName)
	if err != nil {
		logger.Warn().Str("company", companyName).Err(err).Msg("Company resolution failed")
		s.metrics.IncrementRequest(op, string(models.KindOf(err)))
		return nil, err
	}

	return s.build(ctx, logger, requestID, op, corp, periods, referenceYYYYMM, refresh)
}

// SeriesFor builds the series of an already resolved corporation.
func (s *Service) SeriesFor(ctx context.Context, corp models.Corporation, referenceYYYYMM string) (*models.Series, error) {
	logger, requestID := common.RequestLogger(s.logger)

	periods, err := planner.Plan(referenceYYYYMM)
	if err != nil {
		s.metrics.IncrementRequest("series_for", string(models.KindOf(err)))
		return nil, err
	}
	return s.build(ctx, logger, requestID, "series_for", corp, periods, referenceYYYYMM, false)
}

func (s *Service) build(ctx context.Context, logger arbor.ILogger, requestID, op string, corp models.Corporation, periods []models.FiscalPeriod, referenceYYYYMM string, refresh bool) (*models.Series, error) {
	start := time.Now()

	logger.Debug().
		Str("request_id", requestID).
		Str("corp_code", corp.CorpCode.String()).
		Str("corp_name", corp.Name).
		Str("reference", referenceYYYYMM).
		Bool("refresh", refresh).
		Msg("Building series")

	cached := s.lookup(ctx, logger, corp.CorpCode, periods, refresh)

	var missing []models.FiscalPeriod
	for _, p := range periods {
		if _, ok := cached[p]; !ok {
			missing = append(missing, p)
		}
	}
	s.metrics.ObserveCacheLookup(len(cached), len(missing))

	outcomes := s.fetchYears(ctx, logger, corp.CorpCode, planner.FiscalYears(missing))
	if err := ctx.Err(); err != nil {
		s.metrics.IncrementRequest(op, "cancelled")
		return nil, models.NewError(models.ErrorUpstreamUnavailable, "pipeline."+op, "request cancelled", err).NonRetryable()
	}

	now := s.now().UTC()
	series := &models.Series{
		CorpCode:    corp.CorpCode,
		CompanyName: corp.Name,
		Reference:   referenceYYYYMM,
		Entries:     make([]models.SeriesEntry, 0, len(periods)),
	}

	var fresh []models.NormalizedRecord
	var withdrawn []models.FiscalPeriod
	for _, p := range periods {
		if rec, ok := cached[p]; ok {
			series.Entries = append(series.Entries, models.SeriesEntry{Period: p, Record: &rec, Cached: true})
			continue
		}

		entry := s.entryFor(p, outcomes[p.Year], now)
		if entry.Record != nil {
			fresh = append(fresh, *entry.Record)
		} else {
			s.metrics.IncrementIncomplete(string(entry.Reason))
			if refresh && withdrawnReason(entry.Reason) {
				withdrawn = append(withdrawn, p)
			}
		}
		series.Entries = append(series.Entries, entry)
	}

	s.store(ctx, logger, corp.CorpCode, fresh, withdrawn)

	logger.Info().
		Str("corp_code", corp.CorpCode.String()).
		Str("reference", referenceYYYYMM).
		Int("cached", len(cached)).
		Int("fetched_years", len(outcomes)).
		Int("complete", series.CompleteCount()).
		Int("incomplete", len(series.Entries)-series.CompleteCount()).
		Dur("duration", time.Since(start)).
		Msg("Series built")

	s.metrics.IncrementRequest(op, "ok")
	return series, nil
}

// lookup reads every planned period from the cache. A cache failure degrades to fetching everything.
func (s *Service) lookup(ctx context.Context, logger arbor.ILogger, corp models.CorpCode, periods []models.FiscalPeriod, refresh bool) map[models.FiscalPeriod]models.NormalizedRecord {
	if refresh {
		return map[models.FiscalPeriod]models.NormalizedRecord{}
	}

	cached, err := s.records.GetMany(ctx, corp, periods)
	if err != nil {
		logger.Warn().Str("corp_code", corp.String()).Err(err).Msg("Cache read failed, fetching all periods")
		s.metrics.IncrementCacheError()
		return map[models.FiscalPeriod]models.NormalizedRecord{}
	}
	return cached
}

// fetchYears fetches and normalizes each year concurrently. A failed year never cancels the others.
func (s *Service) fetchYears(ctx context.Context, logger arbor.ILogger, corp models.CorpCode, years []int) map[int]yearOutcome {
	outcomes := make(map[int]yearOutcome, len(years))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.maxConcurrentYears)
	for _, year := range years {
		g.Go(func() error {
			result, err := s.fetchYear(ctx, corp, year)
			if err != nil {
				logger.Warn().
					Str("corp_code", corp.String()).
					Int("fiscal_year", year).
					Str("kind", string(models.KindOf(err))).
					Err(err).
					Msg("Fiscal year unavailable")
			}

			mu.Lock()
			outcomes[year] = yearOutcome{result: result, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// fetchYear joins or starts the shared fetch of one company-year. The shared
// work ignores caller cancellation; each caller stops waiting on its own ctx.
func (s *Service) fetchYear(ctx context.Context, corp models.CorpCode, year int) (normalizer.Result, error) {
	if err := ctx.Err(); err != nil {
		return normalizer.Result{}, err
	}

	key := fmt.Sprintf("%s|%d", corp, year)
	ch := s.years.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		start := time.Now()
		defer func() { s.metrics.ObserveYearFetch(time.Since(start)) }()

		items, err := s.fetcher.Fetch(shared, corp, year)
		if err != nil {
			return normalizer.Result{}, err
		}
		res := normalizer.Normalize(items)
		res.CorpCode, res.FiscalYear = corp, year
		return res, nil
	})

	select {
	case <-ctx.Done():
		return normalizer.Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return normalizer.Result{}, r.Err
		}
		return r.Val.(normalizer.Result), nil
	}
}

// entryFor builds the series entry of an uncached period from its year's outcome
func (s *Service) entryFor(p models.FiscalPeriod, outcome yearOutcome, now time.Time) models.SeriesEntry {
	entry := models.SeriesEntry{Period: p}

	if outcome.err != nil {
		entry.Incomplete = true
		entry.Reason = models.KindOf(outcome.err)
		entry.Detail = outcome.err.Error()
		if entry.Reason == models.ErrorNoDisclosure {
			entry.Detail = dueDetail(p, now, "no statements filed for the fiscal year")
		}
		return entry
	}

	rec, ok := outcome.result.Record(p.Quarter)
	if !ok {
		entry.Incomplete = true
		entry.Reason = models.ErrorIncompleteData
		entry.Detail = dueDetail(p, now, outcome.result.Quarter(p.Quarter).Detail)
		return entry
	}

	rec.RetrievedAt = now
	entry.Record = &rec
	return entry
}

// withdrawnReason reports whether an incomplete period means the upstream no
// longer discloses it. Any other failure leaves the cached figures in place.
func withdrawnReason(kind models.ErrorKind) bool {
	return kind == models.ErrorNoDisclosure || kind == models.ErrorIncompleteData
}

// dueDetail distinguishes a report that is not yet due from one that is overdue
func dueDetail(p models.FiscalPeriod, now time.Time, detail string) string {
	deadline := common.FilingDeadline(p)
	if !common.FilingDue(p, now) {
		return fmt.Sprintf("%s; report not yet due (deadline %s)", detail, deadline.Format("2006-01-02"))
	}
	return detail
}

// store writes fresh records in one transaction. Cache failures are logged, never returned.
func (s *Service) store(ctx context.Context, logger arbor.ILogger, corp models.CorpCode, fresh []models.NormalizedRecord, withdrawn []models.FiscalPeriod) {
	if len(withdrawn) > 0 {
		n, err := s.records.Delete(ctx, corp, withdrawn)
		if err != nil {
			logger.Warn().Str("corp_code", corp.String()).Err(err).Msg("Failed to delete withdrawn periods")
			s.metrics.IncrementCacheError()
		} else if n > 0 {
			logger.Info().Str("corp_code", corp.String()).Int("deleted", n).Msg("Deleted cached periods no longer disclosed")
		}
	}

	if len(fresh) == 0 {
		return
	}
	if err := s.records.PutMany(ctx, fresh); err != nil {
		logger.Warn().Str("corp_code", corp.String()).Int("records", len(fresh)).Err(err).Msg("Cache write failed")
		s.metrics.IncrementCacheError()
		return
	}
	logger.Debug().Str("corp_code", corp.String()).Int("records", len(fresh)).Msg("Cached new periods")
}
