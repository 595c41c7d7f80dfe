package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/dartseries/internal/models"
)

var (
	seriesPeriod string
	seriesJSON   bool
	seriesTimeout time.Duration
)

var seriesCmd = &cobra.Command{
	Use:   "series [company]",
	Short: "Print the 16-quarter series for a company",
	Long:  `Resolves the company name, serves cached quarters from storage and fetches the rest from Open DART.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeries(cmd, args[0], false)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [company]",
	Short: "Re-fetch every quarter of the series, overwriting the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeries(cmd, args[0], true)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{seriesCmd, refreshCmd} {
		cmd.Flags().StringVarP(&seriesPeriod, "period", "p", "", "Reference month YYYYMM (default: current month)")
		cmd.Flags().BoolVar(&seriesJSON, "json", false, "Print JSON instead of a table")
		cmd.Flags().DurationVar(&seriesTimeout, "timeout", 5*time.Minute, "Overall request timeout")
	}
}

func runSeries(cmd *cobra.Command, company string, refresh bool) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	period := seriesPeriod
	if period == "" {
		period = time.Now().Format("200601")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), seriesTimeout)
	defer cancel()

	var series *models.Series
	if refresh {
		series, err = application.Pipeline.Refresh(ctx, company, period)
	} else {
		series, err = application.Pipeline.GetSeries(ctx, company, period)
	}
	if err != nil {
		return err
	}

	if seriesJSON {
		return printJSON(cmd.OutOrStdout(), series)
	}
	printSeries(cmd.OutOrStdout(), series)
	return nil
}
