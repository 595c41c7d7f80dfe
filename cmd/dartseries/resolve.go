package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var resolveLimit int

var resolveCmd = &cobra.Command{
	Use:   "resolve [company]",
	Short: "Show directory candidates for a company name",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the corp code directory",
}

var directoryRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the corp code directory and replace the stored snapshot",
	Args:  cobra.NoArgs,
	RunE:  runDirectoryRefresh,
}

func init() {
	resolveCmd.Flags().IntVarP(&resolveLimit, "limit", "n", 10, "Maximum number of candidates")
	directoryCmd.AddCommand(directoryRefreshCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	candidates, err := application.Resolver.Search(ctx, args[0], resolveLimit)
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No candidates for %q\n", args[0])
		return nil
	}
	printCandidates(cmd.OutOrStdout(), candidates)
	return nil
}

func runDirectoryRefresh(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	count, err := application.Resolver.RefreshDirectory(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d corporations\n", count)
	return nil
}
