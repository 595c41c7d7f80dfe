// -----------------------------------------------------------------------
// Package planner turns a reference month into the trailing window of
// fiscal quarters a series covers.
// -----------------------------------------------------------------------

package planner

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/models"
)

const minYear = 1900

const opPlan = "planner.Plan"

// Plan returns the quarter containing referenceYYYYMM plus the preceding
// quarters, common.WindowQuarters entries in total, oldest first.
func Plan(referenceYYYYMM string) ([]models.FiscalPeriod, error) {
	ref, err := ParseReference(referenceYYYYMM)
	if err != nil {
		return nil, err
	}

	periods := make([]models.FiscalPeriod, common.WindowQuarters)
	p := ref
	for i := common.WindowQuarters - 1; i >= 0; i-- {
		periods[i] = p
		p = p.Prev()
	}
	return periods, nil
}

// ParseReference validates a six-digit YYYYMM string and returns its quarter.
func ParseReference(referenceYYYYMM string) (models.FiscalPeriod, error) {
	if len(referenceYYYYMM) != 6 {
		return models.FiscalPeriod{}, invalidPeriod(referenceYYYYMM, "expected six digits YYYYMM")
	}
	for _, r := range referenceYYYYMM {
		if r < '0' || r > '9' {
			return models.FiscalPeriod{}, invalidPeriod(referenceYYYYMM, "expected six digits YYYYMM")
		}
	}

	year, _ := strconv.Atoi(referenceYYYYMM[:4])
	month, _ := strconv.Atoi(referenceYYYYMM[4:])
	if month < 1 || month > 12 {
		return models.FiscalPeriod{}, invalidPeriod(referenceYYYYMM, "month must be 01-12")
	}
	if year < minYear {
		return models.FiscalPeriod{}, invalidPeriod(referenceYYYYMM, fmt.Sprintf("year must be %d or later", minYear))
	}

	return models.FiscalPeriod{Year: year, Quarter: models.QuarterForMonth(month)}, nil
}

// FiscalYears returns the distinct years of periods in ascending order.
func FiscalYears(periods []models.FiscalPeriod) []int {
	seen := make(map[int]bool, len(periods))
	var years []int
	for _, p := range periods {
		if !seen[p.Year] {
			seen[p.Year] = true
			years = append(years, p.Year)
		}
	}
	sort.Ints(years)
	return years
}

// GroupByYear buckets periods by fiscal year, keeping their order within each year.
func GroupByYear(periods []models.FiscalPeriod) map[int][]models.FiscalPeriod {
	groups := make(map[int][]models.FiscalPeriod)
	for _, p := range periods {
		groups[p.Year] = append(groups[p.Year], p)
	}
	return groups
}

func invalidPeriod(ref, reason string) *models.PipelineError {
	return models.NewError(models.ErrorInvalidInput, opPlan, fmt.Sprintf("invalid reference period %q: %s", ref, reason), nil)
}
