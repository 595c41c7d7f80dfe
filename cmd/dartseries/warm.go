package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	warmBatch  int
	warmPeriod string
	warmReset  bool
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-populate the cache for listed companies not yet processed",
	Long:  `Walks listed companies in the corp code directory that have no processing status yet, builds their series and records the outcome. Interrupting keeps completed work.`,
	Args:  cobra.NoArgs,
	RunE:  runWarm,
}

func init() {
	warmCmd.Flags().IntVarP(&warmBatch, "batch", "b", 0, "Number of companies to process (default: batch.size)")
	warmCmd.Flags().StringVarP(&warmPeriod, "period", "p", "", "Reference month YYYYMM (default: batch.reference_period or current month)")
	warmCmd.Flags().BoolVar(&warmReset, "reset", false, "Clear processing status before running")
}

func runWarm(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if warmReset {
		if err := application.BatchRunner.Reset(ctx); err != nil {
			return err
		}
		logger.Info().Msg("Processing status cleared")
	}

	size := warmBatch
	if size <= 0 {
		size = config.Batch.Size
	}
	period := warmPeriod
	if period == "" {
		period = config.Batch.ReferencePeriod
	}

	report, err := application.BatchRunner.Warm(ctx, size, period)
	if report != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Reference %s: selected %d, done %d, failed %d, remaining %d\n",
			report.Reference, report.Selected, report.Done, report.Failed, report.Remaining)
	}
	return err
}
