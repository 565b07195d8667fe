package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/fleet-runner/internal/history"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

func (a *app) newHistoryCommand() *cobra.Command {
	var (
		dir   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the run history",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.history(cmd.Context(), dir, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "tests directory whose history is listed")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultListLimit, "number of runs to list")
	return cmd
}

func (a *app) history(ctx context.Context, dir string, limit int, out io.Writer) error {
	if limit < 1 {
		return usageErrorf("--limit must be positive, got %d", limit)
	}
	cfg, err := a.loadConfig(dir)
	if err != nil {
		return err
	}
	rc, err := workspace.New(workspace.Options{TestsDir: dir, Layout: cfg.Workspace})
	if err != nil {
		return err
	}

	db, err := openHistoryDB(ctx, cfg.Database, rc.RunnerDir)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only use

	runs, err := history.NewStore(db).ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tLABEL\tDEVICES\tPHASE\tDURATION\tERROR")
	for _, r := range runs {
		duration := "-"
		if r.Finished() {
			duration = r.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Label, r.DeviceCount, r.Phase, duration, r.Error)
	}
	return tw.Flush()
}
