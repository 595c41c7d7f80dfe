// -----------------------------------------------------------------------
// Package batch warms the cache by walking listed corporations that have
// not been processed yet.
// -----------------------------------------------------------------------

package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

// SeriesBuilder builds a series for an already resolved corporation.
type SeriesBuilder interface {
	SeriesFor(ctx context.Context, corp models.Corporation, referenceYYYYMM string) (*models.Series, error)
}

// DirectoryRefresher downloads the corp-code directory when none is stored yet.
type DirectoryRefresher interface {
	RefreshDirectory(ctx context.Context) (int, error)
}

// Report summarizes one warm-up run
type Report struct {
	Reference string
	Selected  int
	Done      int
	Failed    int
	Remaining int
}

// Runner processes corporations in batches and records their status.
type Runner struct {
	builder   SeriesBuilder
	refresher DirectoryRefresher
	directory interfaces.DirectoryStorage
	progress  interfaces.ProgressStorage
	logger    arbor.ILogger

	pause time.Duration
	now   func() time.Time
}

// NewRunner creates a batch runner. pause is the delay between two companies.
func NewRunner(builder SeriesBuilder, refresher DirectoryRefresher, directory interfaces.DirectoryStorage, progress interfaces.ProgressStorage, pause time.Duration, logger arbor.ILogger) *Runner {
	return &Runner{
		builder:   builder,
		refresher: refresher,
		directory: directory,
		progress:  progress,
		logger:    logger,
		pause:     pause,
		now:       time.Now,
	}
}

// Warm processes the next size listed corporations without a status entry.
// An empty reference means the current month.
func (r *Runner) Warm(ctx context.Context, size int, referenceYYYYMM string) (*Report, error) {
	if size <= 0 {
		return nil, models.NewError(models.ErrorInvalidInput, "batch.Warm", fmt.Sprintf("batch size must be positive, got %d", size), nil)
	}
	if referenceYYYYMM == "" {
		referenceYYYYMM = r.now().Format("200601")
	}

	pending, err := r.pending(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Reference: referenceYYYYMM}
	selected := pending[:min(size, len(pending))]
	report.Selected = len(selected)
	report.Remaining = len(pending) - len(selected)

	r.logger.Info().
		Int("selected", report.Selected).
		Int("remaining", report.Remaining).
		Str("reference", referenceYYYYMM).
		Msg("Starting batch warm-up")

	for i, corp := range selected {
		if i > 0 {
			if err := wait(ctx, r.pause); err != nil {
				return report, err
			}
		}

		status := &models.ProcessingStatus{CorpCode: corp.CorpCode, State: models.ProcessingDone}
		series, err := r.builder.SeriesFor(ctx, corp, referenceYYYYMM)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			status.State = models.ProcessingFailed
			status.Message = err.Error()
			report.Failed++
		} else {
			status.Message = fmt.Sprintf("%d/%d periods complete", series.CompleteCount(), len(series.Entries))
			report.Done++
		}
		status.ProcessedAt = r.now().UTC()

		if err := r.progress.SetStatus(ctx, status); err != nil {
			return report, fmt.Errorf("failed to record status for %s: %w", corp.CorpCode, err)
		}

		r.logger.Info().
			Str("corp_code", corp.CorpCode.String()).
			Str("corp_name", corp.Name).
			Str("state", string(status.State)).
			Str("message", status.Message).
			Int("position", i+1).
			Int("of", len(selected)).
			Msg("Processed corporation")
	}

	return report, nil
}

// Reset clears all processing status so the next run starts from the beginning.
func (r *Runner) Reset(ctx context.Context) error {
	return r.progress.ResetStatus(ctx)
}

// pending lists listed corporations without a status entry, in corp-code order
func (r *Runner) pending(ctx context.Context) ([]models.Corporation, error) {
	snapshot, err := r.directory.LoadDirectory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory: %w", err)
	}
	if snapshot.Empty() {
		if _, err := r.refresher.RefreshDirectory(ctx); err != nil {
			return nil, err
		}
		if snapshot, err = r.directory.LoadDirectory(ctx); err != nil {
			return nil, fmt.Errorf("failed to load directory: %w", err)
		}
	}

	processed, err := r.progress.ProcessedCorps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load processing status: %w", err)
	}

	var pending []models.Corporation
	for _, c := range snapshot.Corporations {
		if !c.Listed() {
			continue
		}
		if _, done := processed[c.CorpCode]; done {
			continue
		}
		pending = append(pending, c)
	}
	return pending, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
