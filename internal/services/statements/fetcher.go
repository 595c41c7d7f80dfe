// -----------------------------------------------------------------------
// Package statements collects the raw revenue and operating profit line
// items a company filed for one fiscal year.
// -----------------------------------------------------------------------

package statements

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/dart"
	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

const opFetch = "statements.Fetch"

// AccountsClient is the subset of the DART client the fetcher needs.
type AccountsClient interface {
	GetSingleAccounts(ctx context.Context, corp models.CorpCode, year int, report dart.ReportCode, div dart.FSDiv) ([]dart.AccountItem, error)
}

// Fetcher implements interfaces.StatementFetcher against the DART full-statement endpoint.
type Fetcher struct {
	client AccountsClient
	retry  *common.RetryPolicy
	logger arbor.ILogger
}

var _ interfaces.StatementFetcher = (*Fetcher)(nil)

// NewFetcher creates a statement fetcher. A nil retry policy executes each request once.
func NewFetcher(client AccountsClient, retry *common.RetryPolicy, logger arbor.ILogger) *Fetcher {
	if retry == nil {
		retry = common.NoRetryPolicy()
	}
	return &Fetcher{
		client: client,
		retry:  retry,
		logger: logger,
	}
}

// divisions in preference order
var divisions = []dart.FSDiv{dart.FSDivConsolidated, dart.FSDivSeparate}

// Fetch retrieves all four reports of fiscalYear concurrently. Reports that were
// never filed are left out; a year with no report at all is ErrorNoDisclosure.
func (f *Fetcher) Fetch(ctx context.Context, corp models.CorpCode, fiscalYear int) ([]models.RawLineItem, error) {
	perScope := make([][]models.RawLineItem, len(models.ReportScopes))

	g, gctx := errgroup.WithContext(ctx)
	for i, scope := range models.ReportScopes {
		g.Go(func() error {
			items, err := f.fetchScope(gctx, corp, fiscalYear, scope)
			if err != nil {
				return err
			}
			perScope[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []models.RawLineItem
	for _, scoped := range perScope {
		items = append(items, scoped...)
	}

	if len(items) == 0 {
		return nil, models.NewError(models.ErrorNoDisclosure, opFetch,
			fmt.Sprintf("no statements filed by %s for fiscal year %d", corp, fiscalYear), nil)
	}

	f.logger.Debug().
		Str("corp_code", corp.String()).
		Int("fiscal_year", fiscalYear).
		Int("items", len(items)).
		Msg("Fetched statement line items")

	return items, nil
}

// fetchScope tries the consolidated statement first and falls back to the separate one.
func (f *Fetcher) fetchScope(ctx context.Context, corp models.CorpCode, year int, scope models.ReportScope) ([]models.RawLineItem, error) {
	report := dart.ReportCodeForScope(scope)

	for _, div := range divisions {
		var lines []dart.AccountItem
		op := fmt.Sprintf("%s %s/%d/%s/%s", opFetch, corp, year, report, div)

		err := f.retry.ExecuteWithRetry(ctx, f.logger, op, func(ctx context.Context) error {
			var err error
			lines, err = f.client.GetSingleAccounts(ctx, corp, year, report, div)
			return dart.Classify(op, err)
		})
		if models.IsKind(err, models.ErrorNoDisclosure) {
			continue
		}
		if err != nil {
			return nil, err
		}

		items := Extract(lines, corp, year, scope, models.StatementDiv(div))
		if len(items) > 0 {
			return items, nil
		}

		f.logger.Debug().
			Str("corp_code", corp.String()).
			Int("fiscal_year", year).
			Str("reprt_code", string(report)).
			Str("fs_div", string(div)).
			Msg("Report has no revenue or operating profit lines")
	}

	return nil, nil
}

var accountIDs = map[models.Account][]string{
	models.AccountRevenue: {
		"ifrs-full_Revenue",
		"ifrs_Revenue",
		"ifrs-full_RevenueFromContractsWithCustomers",
	},
	models.AccountOperatingProfit: {
		"dart_OperatingIncomeLoss",
		"ifrs-full_ProfitLossFromOperatingActivities",
		"ifrs_ProfitLossFromOperatingActivities",
	},
}

var accountNames = map[models.Account][]string{
	models.AccountRevenue:         {"매출액", "수익(매출액)", "매출", "영업수익"},
	models.AccountOperatingProfit: {"영업이익", "영업이익(손실)", "영업손익", "영업손실"},
}

// incomeStatements are the sj_div values that carry revenue and operating profit
var incomeStatements = map[string]bool{"IS": true, "CIS": true}

// Extract picks one revenue and one operating profit line out of a report.
// An account-id match beats a name match; otherwise the first line wins.
func Extract(lines []dart.AccountItem, corp models.CorpCode, year int, scope models.ReportScope, div models.StatementDiv) []models.RawLineItem {
	var items []models.RawLineItem

	for _, acct := range models.Accounts {
		best, rank := -1, 0
		for i, line := range lines {
			if !incomeStatements[line.StatementDiv] {
				continue
			}
			r := matchRank(line, acct)
			if r > rank {
				best, rank = i, r
			}
		}
		if best < 0 {
			continue
		}

		amount, ok := amountFor(lines[best], scope)
		if !ok {
			continue
		}
		items = append(items, models.RawLineItem{
			CorpCode:     corp,
			FiscalYear:   year,
			Scope:        scope,
			Account:      acct,
			Amount:       amount,
			StatementDiv: div,
		})
	}

	return items
}

// matchRank is 2 for an account-id match, 1 for a name match, 0 otherwise
func matchRank(line dart.AccountItem, acct models.Account) int {
	for _, id := range accountIDs[acct] {
		if line.AccountID == id {
			return 2
		}
	}
	name := strings.Join(strings.Fields(line.AccountName), "")
	for _, n := range accountNames[acct] {
		if name == n {
			return 1
		}
	}
	return 0
}

// amountFor reads the column holding the figure for scope. Half-year and
// three-quarter reports carry the cumulative amount in thstrm_add_amount;
// their thstrm_amount is the three-month figure and never stands in for it.
func amountFor(line dart.AccountItem, scope models.ReportScope) (int64, bool) {
	switch scope {
	case models.ScopeHalfCumulative, models.ScopeThreeQuarterCumulative:
		return dart.ParseAmount(line.CurrentCumAmount)
	}
	return dart.ParseAmount(line.CurrentAmount)
}
