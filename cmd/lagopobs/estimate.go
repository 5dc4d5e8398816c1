package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/output"
	"github.com/reefpulse/LagoPObs/population"
)

func estimateCommand(a *app) *cobra.Command {
	var results string

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the population from an existing clustering_results.csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.estimate(cmd.Context(), results, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&results, "results", "r", output.ClusteringResultsFile, "Clustering table written by analyze")
	cmd.Flags().StringP("output", "o", ".", "Directory receiving the population tables")
	return cmd
}

func (a *app) estimate(ctx context.Context, results string, out, errOut io.Writer) error {
	files, labels, err := output.ReadClusteringResults(results)
	if err != nil {
		return err
	}

	report, err := population.Run(labels, files)
	if err != nil {
		if errors.Is(err, population.ErrDateFormat) {
			fmt.Fprintln(errOut, dateFormatHelp)
		}
		return err
	}

	writer, err := output.NewWriter(a.settings.Output, output.DefaultRetryConfig())
	if err != nil {
		return err
	}
	if err := writer.Population(ctx, report); err != nil {
		return err
	}

	fmt.Fprintf(out, "Estimated individuals: %d\nResident individuals: %d\n",
		report.Estimate.Individuals, report.Estimate.Residents)
	fmt.Fprintln(out, "Results written to "+writer.Dir())
	return nil
}
