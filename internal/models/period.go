package models

import (
	"fmt"
)

// Quarter is a fiscal quarter number, 1 through 4.
type Quarter int

const (
	Q1 Quarter = 1
	Q2 Quarter = 2
	Q3 Quarter = 3
	Q4 Quarter = 4
)

// Quarters lists every quarter in fiscal order.
var Quarters = []Quarter{Q1, Q2, Q3, Q4}

// Valid reports whether q is one of Q1..Q4.
func (q Quarter) Valid() bool {
	return q >= Q1 && q <= Q4
}

// FiscalPeriod identifies one reporting interval.
type FiscalPeriod struct {
	Year    int     `json:"year"`
	Quarter Quarter `json:"quarter"`
}

// NewFiscalPeriod builds a period, rejecting quarters outside 1..4.
func NewFiscalPeriod(year int, quarter int) (FiscalPeriod, error) {
	p := FiscalPeriod{Year: year, Quarter: Quarter(quarter)}
	if !p.Valid() {
		return FiscalPeriod{}, fmt.Errorf("invalid fiscal period %d Q%d", year, quarter)
	}
	return p, nil
}

// Valid reports whether the quarter is in range and the year is positive.
func (p FiscalPeriod) Valid() bool {
	return p.Year > 0 && p.Quarter.Valid()
}

// Before reports whether p sorts strictly before other.
func (p FiscalPeriod) Before(other FiscalPeriod) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Quarter < other.Quarter
}

// Next returns the following quarter, rolling Q4 into Q1 of the next year.
func (p FiscalPeriod) Next() FiscalPeriod {
	if p.Quarter == Q4 {
		return FiscalPeriod{Year: p.Year + 1, Quarter: Q1}
	}
	return FiscalPeriod{Year: p.Year, Quarter: p.Quarter + 1}
}

// Prev returns the preceding quarter, rolling Q1 into Q4 of the previous year.
func (p FiscalPeriod) Prev() FiscalPeriod {
	if p.Quarter == Q1 {
		return FiscalPeriod{Year: p.Year - 1, Quarter: Q4}
	}
	return FiscalPeriod{Year: p.Year, Quarter: p.Quarter - 1}
}

// Scope returns the report scope whose cumulative figure ends at this quarter.
func (p FiscalPeriod) Scope() ReportScope {
	return ScopeForQuarter(p.Quarter)
}

func (p FiscalPeriod) String() string {
	return fmt.Sprintf("%dQ%d", p.Year, p.Quarter)
}

// Label is the display form used by the CLI and the JSON API, e.g. "2024 Q3".
func (p FiscalPeriod) Label() string {
	return fmt.Sprintf("%d Q%d", p.Year, p.Quarter)
}

// QuarterForMonth maps a calendar month (1-12) to its quarter.
func QuarterForMonth(month int) Quarter {
	return Quarter((month-1)/3 + 1)
}
