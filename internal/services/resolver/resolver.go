// -----------------------------------------------------------------------
// Package resolver maps free-text company names onto the regulator's
// corp-code directory, keeping a persisted copy of the directory fresh.
// -----------------------------------------------------------------------

package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/dart"
	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

const (
	opResolve = "resolver.Resolve"
	opRefresh = "resolver.RefreshDirectory"

	// DefaultMinSimilarity discards weak fuzzy matches
	DefaultMinSimilarity = 0.8
	// DefaultMaxAge is how long a directory snapshot is trusted
	DefaultMaxAge = 24 * time.Hour

	maxAmbiguousCandidates = 5
	defaultSearchLimit     = 10
	scoreEpsilon           = 1e-9
)

// entry is a directory corporation with its precomputed comparison keys
type entry struct {
	corp    models.Corporation
	name    string
	english string
}

// Service implements interfaces.IdentifierResolver.
type Service struct {
	source interfaces.DirectorySource
	store  interfaces.DirectoryStorage
	logger arbor.ILogger

	minSimilarity float64
	maxAge        time.Duration
	now           func() time.Time

	mu        sync.RWMutex
	entries   []entry
	fetchedAt time.Time
	loaded    bool

	refreshGroup singleflight.Group
}

var _ interfaces.IdentifierResolver = (*Service)(nil)

// Option configures a Service
type Option func(*Service)

// WithMinSimilarity sets the score below which candidates are discarded.
func WithMinSimilarity(v float64) Option {
	return func(s *Service) {
		if v > 0 && v <= 1 {
			s.minSimilarity = v
		}
	}
}

// WithMaxAge sets how old the persisted directory may get before it is refreshed.
func WithMaxAge(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a resolver over a directory source and its persisted copy.
func NewService(source interfaces.DirectorySource, store interfaces.DirectoryStorage, logger arbor.ILogger, opts ...Option) *Service {
	s := &Service{
		source:        source,
		store:         store,
		logger:        logger,
		minSimilarity: DefaultMinSimilarity,
		maxAge:        DefaultMaxAge,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the single best directory entry for companyName.
func (s *Service) Resolve(ctx context.Context, companyName string) (models.Corporation, error) {
	name := strings.TrimSpace(companyName)
	if name == "" {
		return models.Corporation{}, models.NewError(models.ErrorInvalidInput, opResolve, "company name is empty", nil)
	}

	entries, err := s.directory(ctx)
	if err != nil {
		return models.Corporation{}, err
	}

	best := bestCandidates(entries, name, s.minSimilarity)
	if len(best) == 0 {
		return models.Corporation{}, models.NewError(models.ErrorNotFound, opResolve,
			fmt.Sprintf("no company matches %q", name), nil)
	}

	best = tieBreak(best)
	if len(best) > 1 {
		names := make([]string, 0, maxAmbiguousCandidates)
		for _, c := range best[:min(len(best), maxAmbiguousCandidates)] {
			names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.CorpCode))
		}
		return models.Corporation{}, models.NewAmbiguousError(opResolve, name, names)
	}

	s.logger.Debug().
		Str("query", name).
		Str("corp_code", best[0].CorpCode.String()).
		Str("corp_name", best[0].Name).
		Float64("score", best[0].Score).
		Msg("Resolved company name")

	return best[0].Corporation, nil
}

// Search returns up to limit candidates above the similarity threshold, best first.
func (s *Service) Search(ctx context.Context, companyName string, limit int) ([]models.Candidate, error) {
	name := strings.TrimSpace(companyName)
	if name == "" {
		return nil, models.NewError(models.ErrorInvalidInput, "resolver.Search", "company name is empty", nil)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	entries, err := s.directory(ctx)
	if err != nil {
		return nil, err
	}

	query := Normalize(name)
	var candidates []models.Candidate
	for _, e := range entries {
		score := e.score(name, query)
		if score >= s.minSimilarity {
			candidates = append(candidates, models.Candidate{Corporation: e.corp, Score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return preferred(a, b)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// RefreshDirectory downloads the directory, persists it and swaps the in-memory index.
func (s *Service) RefreshDirectory(ctx context.Context) (int, error) {
	v, err, shared := s.refreshGroup.Do("directory", func() (interface{}, error) {
		corps, err := s.source.GetCorpCodes(ctx)
		if err != nil {
			return 0, dart.Classify(opRefresh, err)
		}

		fetchedAt := s.now().UTC()
		if err := s.store.ReplaceDirectory(ctx, corps, fetchedAt); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist corp code directory, keeping it in memory only")
		}

		s.install(corps, fetchedAt)
		s.logger.Info().Int("corporations", len(corps)).Msg("Corp code directory refreshed")
		return len(corps), nil
	})
	if err != nil {
		return 0, err
	}
	if shared {
		s.logger.Debug().Msg("Joined in-flight directory refresh")
	}
	return v.(int), nil
}

// Load makes the directory available, refreshing it when missing or stale,
// and returns the number of entries.
func (s *Service) Load(ctx context.Context) (int, error) {
	entries, err := s.directory(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// directory returns the in-memory index, loading the persisted snapshot and
// refreshing it from upstream when it is missing or stale.
func (s *Service) directory(ctx context.Context) ([]entry, error) {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()

	if !loaded {
		s.load(ctx)
	}

	s.mu.RLock()
	entries, fetchedAt := s.entries, s.fetchedAt
	s.mu.RUnlock()

	staleness := common.CheckDirectoryStaleness(fetchedAt, s.now(), s.maxAge)
	if !staleness.IsStale && len(entries) > 0 {
		return entries, nil
	}

	s.logger.Info().Str("reason", staleness.Reason).Msg("Refreshing corp code directory")
	if _, err := s.RefreshDirectory(ctx); err != nil {
		if len(entries) == 0 {
			return nil, err
		}
		s.logger.Warn().Err(err).
			Str("fetched_at", fetchedAt.Format(time.RFC3339)).
			Msg("Directory refresh failed, using stale snapshot")
		return entries, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries, nil
}

// load reads the persisted snapshot once. A storage failure leaves the index empty.
func (s *Service) load(ctx context.Context) {
	snapshot, err := s.store.LoadDirectory(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load persisted corp code directory")
		snapshot = &models.DirectorySnapshot{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.entries = index(snapshot.Corporations)
	s.fetchedAt = snapshot.FetchedAt
	s.loaded = true

	s.logger.Debug().
		Int("corporations", len(s.entries)).
		Str("fetched_at", snapshot.FetchedAt.Format(time.RFC3339)).
		Msg("Loaded persisted corp code directory")
}

func (s *Service) install(corps []models.Corporation, fetchedAt time.Time) {
	entries := index(corps)

	s.mu.Lock()
	s.entries = entries
	s.fetchedAt = fetchedAt
	s.loaded = true
	s.mu.Unlock()
}

func index(corps []models.Corporation) []entry {
	entries := make([]entry, 0, len(corps))
	for _, c := range corps {
		e := entry{corp: c, name: Normalize(c.Name)}
		if c.EnglishName != "" {
			e.english = Normalize(c.EnglishName)
		}
		entries = append(entries, e)
	}
	return entries
}

// score rates the entry against the raw and normalized query
func (e entry) score(raw, query string) float64 {
	if e.corp.Name == raw || (e.corp.EnglishName != "" && strings.EqualFold(e.corp.EnglishName, raw)) {
		return 1
	}
	score := Similarity(query, e.name)
	if e.english != "" {
		score = max(score, Similarity(query, e.english))
	}
	return score
}

// bestCandidates returns the candidates sharing the top score. Exact raw-name
// matches win outright over anything reached through normalization.
func bestCandidates(entries []entry, raw string, threshold float64) []models.Candidate {
	var exact []models.Candidate
	for _, e := range entries {
		if e.corp.Name == raw {
			exact = append(exact, models.Candidate{Corporation: e.corp, Score: 1})
		}
	}
	if len(exact) > 0 {
		return exact
	}

	query := Normalize(raw)
	var best []models.Candidate
	top := 0.0
	for _, e := range entries {
		score := e.score(raw, query)
		if score < threshold {
			continue
		}
		switch {
		case score > top+scoreEpsilon:
			top = score
			best = append(best[:0], models.Candidate{Corporation: e.corp, Score: score})
		case score >= top-scoreEpsilon:
			best = append(best, models.Candidate{Corporation: e.corp, Score: score})
		}
	}
	return best
}

// tieBreak keeps the listed entities if any, then those with the latest modify date.
func tieBreak(candidates []models.Candidate) []models.Candidate {
	if len(candidates) < 2 {
		return candidates
	}

	var listed []models.Candidate
	for _, c := range candidates {
		if c.Listed() {
			listed = append(listed, c)
		}
	}
	if len(listed) > 0 {
		candidates = listed
	}

	latest := ""
	for _, c := range candidates {
		if c.ModifyDate > latest {
			latest = c.ModifyDate
		}
	}
	var newest []models.Candidate
	for _, c := range candidates {
		if c.ModifyDate == latest {
			newest = append(newest, c)
		}
	}

	sort.Slice(newest, func(i, j int) bool { return newest[i].CorpCode < newest[j].CorpCode })
	return newest
}

// preferred orders equal-score candidates for display
func preferred(a, b models.Candidate) bool {
	if a.Listed() != b.Listed() {
		return a.Listed()
	}
	if a.ModifyDate != b.ModifyDate {
		return a.ModifyDate > b.ModifyDate
	}
	return a.CorpCode < b.CorpCode
}
