// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"time"

	"github.com/ternarybob/dartseries/internal/models"
)

// Filing windows after the end of the covered period.
const (
	QuarterlyFilingDays = 45
	AnnualFilingDays    = 90
)

// StalenessResult contains the result of a staleness check.
type StalenessResult struct {
	// IsStale indicates whether the cached data is stale and needs refresh.
	IsStale bool
	// NextCheckTime is when to check again if data is not currently stale.
	NextCheckTime time.Time
	// Reason provides a human-readable explanation for the staleness decision.
	Reason string
}

// CheckDirectoryStaleness decides whether the persisted corp-code directory needs a refresh.
//
// Parameters:
//   - fetchedAt: When the snapshot was downloaded (zero if never)
//   - now: Current time
//   - maxAge: Age after which the snapshot is refreshed
func CheckDirectoryStaleness(fetchedAt time.Time, now time.Time, maxAge time.Duration) StalenessResult {
	if fetchedAt.IsZero() {
		return StalenessResult{
			IsStale: true,
			Reason:  "directory has never been fetched",
		}
	}

	now = now.UTC()
	fetchedAt = fetchedAt.UTC()
	expiresAt := fetchedAt.Add(maxAge)

	if !now.Before(expiresAt) {
		return StalenessResult{
			IsStale: true,
			Reason: fmt.Sprintf(
				"directory fetched %s is older than %s",
				fetchedAt.Format("2006-01-02 15:04 MST"),
				maxAge,
			),
		}
	}

	return StalenessResult{
		IsStale:       false,
		NextCheckTime: expiresAt,
		Reason: fmt.Sprintf(
			"directory is fresh (fetched %s), next refresh at %s",
			fetchedAt.Format("2006-01-02 15:04 MST"),
			expiresAt.Format("2006-01-02 15:04 MST"),
		),
	}
}

// PeriodEnd returns the last calendar day of the quarter.
func PeriodEnd(p models.FiscalPeriod) time.Time {
	firstOfNext := time.Date(p.Year, time.Month(int(p.Quarter)*3)+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1)
}

// FilingDeadline returns the statutory deadline of the report covering p.
// Q4 figures come from the annual report, which has the longer window.
func FilingDeadline(p models.FiscalPeriod) time.Time {
	days := QuarterlyFilingDays
	if p.Quarter == models.Q4 {
		days = AnnualFilingDays
	}
	return PeriodEnd(p).AddDate(0, 0, days)
}

// FilingDue reports whether the report covering p should have been filed by now.
func FilingDue(p models.FiscalPeriod, now time.Time) bool {
	return now.UTC().After(FilingDeadline(p))
}
