package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/store"
)

func runsCommand(a *app) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs recorded in the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.settings.Database == "" {
				return errors.Newf("no database given, use --db").
					Component("cli").
					Category(errors.CategoryConfiguration).
					Build()
			}
			db, err := store.Open(a.settings.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if id != "" {
				return showRun(cmd.Context(), db, id, cmd.OutOrStdout())
			}
			return listRuns(cmd.Context(), db, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("db", "", "SQLite database holding the run history")
	cmd.Flags().StringVar(&id, "id", "", "Show the assignments of one run")
	return cmd
}

func listRuns(ctx context.Context, db *store.Store, out io.Writer) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tRECORDINGS\tCLUSTERS\tINDIVIDUALS\tRESIDENTS\tFEATURES\tCLUSTERING")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Recordings, r.NClusters,
			r.Individuals, r.Residents, r.FeatureAlgorithm, r.ClusteringAlgorithm)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, db *store.Store, id string, out io.Writer) error {
	runID, err := uuid.Parse(id)
	if err != nil {
		return errors.New(fmt.Errorf("invalid run id %q: %w", id, err)).
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	rows, err := db.Assignments(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run %s started %s on %s\n", run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.InputDir)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCLUSTER")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\n", r.File, r.Cluster)
	}
	return tw.Flush()
}
