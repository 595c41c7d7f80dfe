// -----------------------------------------------------------------------
// Package normalizer converts cumulative year-to-date filings into
// standalone quarterly figures.
// -----------------------------------------------------------------------

package normalizer

import (
	"fmt"

	"github.com/ternarybob/dartseries/internal/models"
)

// Figures are the standalone amounts of one quarter.
type Figures struct {
	Revenue         int64
	OperatingProfit int64
	StatementDiv    models.StatementDiv
}

// QuarterResult is either complete figures or the reason they could not be derived.
type QuarterResult struct {
	Quarter    models.Quarter
	Figures    Figures
	Incomplete bool
	// Detail says why the quarter is incomplete
	Detail string
}

// Result holds one entry per quarter of the fiscal year, indexed Q1..Q4.
type Result struct {
	CorpCode   models.CorpCode
	FiscalYear int
	Quarters   [4]QuarterResult
}

// Quarter returns the result for q.
func (r Result) Quarter(q models.Quarter) QuarterResult {
	return r.Quarters[q-1]
}

// Record converts a complete quarter into a normalized record.
// The second result is false when the quarter is incomplete.
func (r Result) Record(q models.Quarter) (models.NormalizedRecord, bool) {
	qr := r.Quarter(q)
	if qr.Incomplete {
		return models.NormalizedRecord{}, false
	}
	return models.NormalizedRecord{
		CorpCode:        r.CorpCode,
		Period:          models.FiscalPeriod{Year: r.FiscalYear, Quarter: q},
		Revenue:         qr.Figures.Revenue,
		OperatingProfit: qr.Figures.OperatingProfit,
		StatementDiv:    qr.Figures.StatementDiv,
	}, true
}

type cellKey struct {
	scope   models.ReportScope
	account models.Account
}

type cell struct {
	amount int64
	div    models.StatementDiv
}

// table folds items into one amount per (scope, account). On duplicates the
// consolidated statement wins, then the first occurrence.
type table map[cellKey]cell

func fold(items []models.RawLineItem) table {
	t := make(table)
	for _, it := range items {
		k := cellKey{it.Scope, it.Account}
		existing, ok := t[k]
		if !ok || (existing.div != models.StatementConsolidated && it.StatementDiv == models.StatementConsolidated) {
			t[k] = cell{amount: it.Amount, div: it.StatementDiv}
		}
	}
	return t
}

// baselines maps each quarter to the cumulative scope it ends on and the one subtracted from it.
var baselines = map[models.Quarter]struct{ current, previous models.ReportScope }{
	models.Q1: {models.ScopeQ1Single, ""},
	models.Q2: {models.ScopeHalfCumulative, models.ScopeQ1Single},
	models.Q3: {models.ScopeThreeQuarterCumulative, models.ScopeHalfCumulative},
	models.Q4: {models.ScopeAnnualCumulative, models.ScopeThreeQuarterCumulative},
}

// Normalize derives standalone figures for every quarter of one company-year.
// Items for other companies or years must not be mixed in.
func Normalize(items []models.RawLineItem) Result {
	var res Result
	if len(items) > 0 {
		res.CorpCode = items[0].CorpCode
		res.FiscalYear = items[0].FiscalYear
	}

	t := fold(items)
	for _, q := range models.Quarters {
		res.Quarters[q-1] = quarter(t, q)
	}
	return res
}

func quarter(t table, q models.Quarter) QuarterResult {
	qr := QuarterResult{Quarter: q}
	b := baselines[q]

	amounts := make(map[models.Account]int64, len(models.Accounts))
	var div models.StatementDiv
	for _, acct := range models.Accounts {
		cur, ok := t[cellKey{b.current, acct}]
		if !ok {
			qr.Incomplete = true
			qr.Detail = missing(b.current, acct)
			return qr
		}
		amount := cur.amount
		if b.previous != "" {
			prev, ok := t[cellKey{b.previous, acct}]
			if !ok {
				qr.Incomplete = true
				qr.Detail = missing(b.previous, acct)
				return qr
			}
			// A baseline from the other statement division is not comparable
			if prev.div != cur.div {
				qr.Incomplete = true
				qr.Detail = fmt.Sprintf("%s %s is %s but baseline %s is %s", b.current, acct, cur.div, b.previous, prev.div)
				return qr
			}
			amount -= prev.amount
		}
		amounts[acct] = amount
		if div == "" || cur.div == models.StatementSeparate {
			div = cur.div
		}
	}

	qr.Figures = Figures{
		Revenue:         amounts[models.AccountRevenue],
		OperatingProfit: amounts[models.AccountOperatingProfit],
		StatementDiv:    div,
	}
	return qr
}

func missing(scope models.ReportScope, acct models.Account) string {
	return fmt.Sprintf("missing %s %s", scope, acct)
}
