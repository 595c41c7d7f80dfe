package common

import (
	"testing"
	"time"

	"github.com/ternarybob/dartseries/internal/models"
)

// Helper to create a time easily
func mustTime(t *testing.T, layout, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(layout, value)
	if err != nil {
		t.Fatalf("failed to parse time %q: %v", value, err)
	}
	return parsed
}

func TestCheckDirectoryStaleness(t *testing.T) {
	now := mustTime(t, time.RFC3339, "2025-03-10T12:00:00Z")

	tests := []struct {
		name      string
		fetchedAt time.Time
		maxAge    time.Duration
		wantStale bool
	}{
		{"never fetched", time.Time{}, 24 * time.Hour, true},
		{"fetched an hour ago", now.Add(-time.Hour), 24 * time.Hour, false},
		{"fetched exactly max age ago", now.Add(-24 * time.Hour), 24 * time.Hour, true},
		{"fetched two days ago", now.Add(-48 * time.Hour), 24 * time.Hour, true},
		{"short max age", now.Add(-10 * time.Minute), 5 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckDirectoryStaleness(tt.fetchedAt, now, tt.maxAge)
			if got.IsStale != tt.wantStale {
				t.Errorf("CheckDirectoryStaleness() IsStale = %v, want %v (reason: %s)", got.IsStale, tt.wantStale, got.Reason)
			}
			if got.Reason == "" {
				t.Error("expected a reason")
			}
			if !got.IsStale && !got.NextCheckTime.Equal(tt.fetchedAt.Add(tt.maxAge)) {
				t.Errorf("NextCheckTime = %v, want %v", got.NextCheckTime, tt.fetchedAt.Add(tt.maxAge))
			}
		})
	}
}

func TestPeriodEnd(t *testing.T) {
	tests := []struct {
		period models.FiscalPeriod
		want   string
	}{
		{models.FiscalPeriod{Year: 2024, Quarter: models.Q1}, "2024-03-31"},
		{models.FiscalPeriod{Year: 2024, Quarter: models.Q2}, "2024-06-30"},
		{models.FiscalPeriod{Year: 2024, Quarter: models.Q3}, "2024-09-30"},
		{models.FiscalPeriod{Year: 2024, Quarter: models.Q4}, "2024-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.period.String(), func(t *testing.T) {
			if got := PeriodEnd(tt.period).Format("2006-01-02"); got != tt.want {
				t.Errorf("PeriodEnd() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFilingDue(t *testing.T) {
	q3 := models.FiscalPeriod{Year: 2024, Quarter: models.Q3}
	q4 := models.FiscalPeriod{Year: 2024, Quarter: models.Q4}

	if got := FilingDeadline(q3).Format("2006-01-02"); got != "2024-11-14" {
		t.Errorf("Q3 deadline = %s, want 2024-11-14", got)
	}
	if got := FilingDeadline(q4).Format("2006-01-02"); got != "2025-03-31" {
		t.Errorf("Q4 deadline = %s, want 2025-03-31", got)
	}

	now := mustTime(t, time.RFC3339, "2025-02-01T00:00:00Z")
	if !FilingDue(q3, now) {
		t.Error("Q3 2024 report should be due by February 2025")
	}
	if FilingDue(q4, now) {
		t.Error("annual 2024 report should not be due by February 2025")
	}
}
