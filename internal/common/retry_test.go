package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/models"
)

func newTestPolicy(slept *[]time.Duration) *RetryPolicy {
	p := NewDefaultRetryPolicy()
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
	return p
}

func TestExecuteWithRetry_RetriesUpstreamUnavailable(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(&slept)

	calls := 0
	err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return models.NewError(models.ErrorUpstreamUnavailable, "fetch", "503", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, slept, 2)
}

func TestExecuteWithRetry_NeverRetriesTerminalKinds(t *testing.T) {
	kinds := []models.ErrorKind{
		models.ErrorNotFound,
		models.ErrorAmbiguous,
		models.ErrorInvalidInput,
		models.ErrorNoDisclosure,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			var slept []time.Duration
			p := newTestPolicy(&slept)

			calls := 0
			err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), "op", func(ctx context.Context) error {
				calls++
				return models.NewError(kind, "op", "terminal", nil)
			})

			require.Error(t, err)
			assert.Equal(t, kind, models.KindOf(err))
			assert.Equal(t, 1, calls)
			assert.Empty(t, slept)
		})
	}
}

func TestExecuteWithRetry_ExhaustsAttempts(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(&slept)

	calls := 0
	err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), "fetch", func(ctx context.Context) error {
		calls++
		return models.NewError(models.ErrorRateLimited, "fetch", "020", nil)
	})

	require.Error(t, err)
	assert.Equal(t, p.MaxAttempts, calls)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, p.RateLimitBackoff)
	}
}

func TestExecuteWithRetry_ForeignErrorNotRetried(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(&slept)

	calls := 0
	err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewDefaultRetryPolicy()
	p.InitialBackoff = time.Hour

	err := p.ExecuteWithRetry(ctx, arbor.NewLogger(), "op", func(ctx context.Context) error {
		return models.NewError(models.ErrorUpstreamUnavailable, "op", "down", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	p := NewDefaultRetryPolicy()
	for attempt := 0; attempt < 10; attempt++ {
		d := p.CalculateBackoff(attempt, nil)
		assert.LessOrEqual(t, d, time.Duration(float64(p.MaxBackoff)*1.25))
		assert.Greater(t, d, time.Duration(0))
	}
}
