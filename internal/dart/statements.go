package dart

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/dartseries/internal/models"
)

const singleAccountsPath = "/fnlttSinglAcntAll.json"

// GetSingleAccounts retrieves the full single-company financial statement for one report.
func (c *Client) GetSingleAccounts(ctx context.Context, corp models.CorpCode, year int, report ReportCode, div FSDiv) ([]AccountItem, error) {
	params := url.Values{}
	params.Set("corp_code", corp.String())
	params.Set("bsns_year", strconv.Itoa(year))
	params.Set("reprt_code", string(report))
	params.Set("fs_div", string(div))

	var result SingleAccountsResponse
	if err := c.getJSON(ctx, singleAccountsPath, params, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// ReportCodeForScope maps a report scope to the reprt_code that files it.
func ReportCodeForScope(scope models.ReportScope) ReportCode {
	switch scope {
	case models.ScopeQ1Single:
		return ReportQ1
	case models.ScopeHalfCumulative:
		return ReportHalf
	case models.ScopeThreeQuarterCumulative:
		return ReportQ3
	default:
		return ReportAnnual
	}
}

// ParseAmount parses a DART amount column. Blank and "-" mean absent.
// Commas are grouping separators; parentheses and a leading minus both mean negative.
func ParseAmount(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// IsNoData reports whether err is the upstream "no data" status.
func IsNoData(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.NoData()
}

// Classify maps a client error onto the pipeline error taxonomy.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pe *models.PipelineError
	if errors.As(err, &pe) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewError(models.ErrorUpstreamUnavailable, op, "request cancelled or timed out", err).NonRetryable()
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return models.NewError(models.ErrorRateLimited, op, "upstream rate limit", err)
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.NoData():
			return models.NewError(models.ErrorNoDisclosure, op, "no filing for request", err)
		case se.KeyProblem():
			return models.NewError(models.ErrorUpstreamUnavailable, op, "API key rejected", err).NonRetryable()
		case se.Status == StatusInvalidParam || se.Status == StatusInvalidCorp:
			return models.NewError(models.ErrorInvalidInput, op, se.Message, err)
		default:
			return models.NewError(models.ErrorUpstreamUnavailable, op, "upstream service unavailable", err)
		}
	}

	var ae *APIError
	if errors.As(err, &ae) {
		e := models.NewError(models.ErrorUpstreamUnavailable, op, "upstream HTTP error", err)
		if ae.StatusCode < 500 && ae.StatusCode != 408 {
			e.NonRetryable()
		}
		return e
	}

	// Network and decode failures
	return models.NewError(models.ErrorUpstreamUnavailable, op, "upstream request failed", err)
}
