package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/ternarybob/dartseries/internal/models"
)

// printSeries renders the series as a table, amounts in millions of won
func printSeries(w io.Writer, series *models.Series) {
	fmt.Fprintf(w, "%s (%s), reference %s\n", series.CompanyName, series.CorpCode, series.Reference)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Period", "Revenue", "Operating Profit", "Margin %", "Statement", "Status"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetFooter([]string{"", "", "", "", "Complete", fmt.Sprintf("%d/%d", series.CompleteCount(), len(series.Entries))})
	table.SetBorder(false)

	for _, row := range series.Rows() {
		table.Append([]string{row.Period, row.Revenue, row.OperatingProfit, row.Margin, row.Statement, row.Status})
	}

	table.Render()
}

// printCandidates renders resolver candidates, best first
func printCandidates(w io.Writer, candidates []models.Candidate) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Corp Code", "Name", "Stock Code", "Modified", "Score"})
	table.SetBorder(false)

	for _, c := range candidates {
		table.Append([]string{
			c.CorpCode.String(),
			c.Name,
			c.StockCode,
			c.ModifyDate,
			strconv.FormatFloat(c.Score, 'f', 2, 64),
		})
	}

	table.Render()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitCode maps pipeline error kinds onto process exit codes
func exitCode(err error) int {
	var pe *models.PipelineError
	if !errors.As(err, &pe) {
		return 1
	}
	switch pe.Kind {
	case models.ErrorInvalidInput:
		return 2
	case models.ErrorNotFound, models.ErrorAmbiguous:
		return 3
	case models.ErrorUpstreamUnavailable, models.ErrorRateLimited, models.ErrorNoDisclosure:
		return 4
	default:
		return 1
	}
}
