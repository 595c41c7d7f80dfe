package models

import (
	"time"
)

// CorpCode is the regulator's stable 8-digit corporate identifier.
type CorpCode string

func (c CorpCode) String() string {
	return string(c)
}

// ReportScope tags a raw figure with the span it covers within a fiscal year.
type ReportScope string

const (
	ScopeQ1Single               ReportScope = "Q1_SINGLE"
	ScopeHalfCumulative         ReportScope = "Q2_CUMULATIVE_HALF"
	ScopeThreeQuarterCumulative ReportScope = "Q3_CUMULATIVE_THREE_QUARTERS"
	ScopeAnnualCumulative       ReportScope = "ANNUAL_CUMULATIVE"
)

// ReportScopes lists the scopes in fiscal order.
var ReportScopes = []ReportScope{
	ScopeQ1Single,
	ScopeHalfCumulative,
	ScopeThreeQuarterCumulative,
	ScopeAnnualCumulative,
}

// ScopeForQuarter returns the scope of the report filed for quarter q.
func ScopeForQuarter(q Quarter) ReportScope {
	switch q {
	case Q1:
		return ScopeQ1Single
	case Q2:
		return ScopeHalfCumulative
	case Q3:
		return ScopeThreeQuarterCumulative
	default:
		return ScopeAnnualCumulative
	}
}

// Account identifies the income statement line a figure belongs to.
type Account string

const (
	AccountRevenue         Account = "revenue"
	AccountOperatingProfit Account = "operating_profit"
)

// Accounts lists the accounts every normalized record carries.
var Accounts = []Account{AccountRevenue, AccountOperatingProfit}

// StatementDiv distinguishes consolidated from separate financial statements.
type StatementDiv string

const (
	StatementConsolidated StatementDiv = "CFS"
	StatementSeparate     StatementDiv = "OFS"
)

// RawLineItem is one amount as delivered by the statement API, before normalization.
type RawLineItem struct {
	CorpCode     CorpCode
	FiscalYear   int
	Scope        ReportScope
	Account      Account
	Amount       int64
	StatementDiv StatementDiv
}

// NormalizedRecord holds single-quarter figures for one company and period.
// It is the unit of cache storage.
type NormalizedRecord struct {
	CorpCode        CorpCode     `json:"corp_code"`
	Period          FiscalPeriod `json:"period"`
	Revenue         int64        `json:"revenue"`
	OperatingProfit int64        `json:"operating_profit"`
	StatementDiv    StatementDiv `json:"statement_div"`
	RetrievedAt     time.Time    `json:"retrieved_at"`
}

// OperatingMargin returns operating profit over revenue.
// The second result is false when revenue is zero and the margin is undefined.
func (r NormalizedRecord) OperatingMargin() (float64, bool) {
	if r.Revenue == 0 {
		return 0, false
	}
	return float64(r.OperatingProfit) / float64(r.Revenue), true
}

// SameFigures compares the financial content of two records, ignoring retrieval time.
func (r NormalizedRecord) SameFigures(other NormalizedRecord) bool {
	return r.CorpCode == other.CorpCode &&
		r.Period == other.Period &&
		r.Revenue == other.Revenue &&
		r.OperatingProfit == other.OperatingProfit &&
		r.StatementDiv == other.StatementDiv
}
