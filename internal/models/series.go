package models

import (
	"fmt"
)

// SeriesEntry is one planned period of a series. Record is nil when Incomplete is set.
type SeriesEntry struct {
	Period     FiscalPeriod      `json:"period"`
	Record     *NormalizedRecord `json:"record,omitempty"`
	Incomplete bool              `json:"incomplete"`
	Reason     ErrorKind         `json:"reason,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Cached     bool              `json:"cached"`
}

// Series is the ordered trailing window returned to consumers, oldest period first.
type Series struct {
	CorpCode    CorpCode      `json:"corp_code"`
	CompanyName string        `json:"company_name"`
	Reference   string        `json:"reference"`
	Entries     []SeriesEntry `json:"entries"`
}

// CompleteCount returns the number of entries that carry figures.
func (s *Series) CompleteCount() int {
	n := 0
	for _, e := range s.Entries {
		if !e.Incomplete && e.Record != nil {
			n++
		}
	}
	return n
}

// SeriesRow is the display projection of one entry.
type SeriesRow struct {
	Company         string `json:"company"`
	Period          string `json:"period"`
	Year            int    `json:"year"`
	Quarter         int    `json:"quarter"`
	Revenue         string `json:"revenue"`
	OperatingProfit string `json:"operating_profit"`
	Margin          string `json:"margin"`
	Statement       string `json:"statement"`
	Status          string `json:"status"`
}

const millions = 1_000_000

// Rows projects the series for display. Amounts are in millions of won, margin in percent.
func (s *Series) Rows() []SeriesRow {
	rows := make([]SeriesRow, 0, len(s.Entries))
	for _, e := range s.Entries {
		row := SeriesRow{
			Company: s.CompanyName,
			Period:  e.Period.Label(),
			Year:    e.Period.Year,
			Quarter: int(e.Period.Quarter),
		}

		if e.Incomplete || e.Record == nil {
			row.Status = "incomplete"
			if e.Reason != ErrorNone {
				row.Status = "incomplete: " + string(e.Reason)
			}
			rows = append(rows, row)
			continue
		}

		row.Revenue = formatMillions(e.Record.Revenue)
		row.OperatingProfit = formatMillions(e.Record.OperatingProfit)
		if m, ok := e.Record.OperatingMargin(); ok {
			row.Margin = fmt.Sprintf("%.1f", m*100)
		}
		row.Statement = string(e.Record.StatementDiv)
		row.Status = "ok"
		if e.Cached {
			row.Status = "cached"
		}
		rows = append(rows, row)
	}
	return rows
}

// formatMillions renders an amount in millions with thousands separators.
func formatMillions(amount int64) string {
	v := amount / millions
	neg := v < 0
	if neg {
		v = -v
	}
	digits := fmt.Sprintf("%d", v)
	var out []byte
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
