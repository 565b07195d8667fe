package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/logging"
	"github.com/nerrad567/fleet-runner/internal/pipeline"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

type runOptions struct {
	sel     selection
	label   string
	ci      bool
	verbose bool
}

func (a *app) newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run (-d DIR | -f FILE)",
		Short: "Run suites across every device of the fleet",
		Long: `Runs the selected suites one after the other, each across the whole fleet.

The output tree below <tests dir>/runner/output is wiped first. Errors are
appended to <tests dir>/runner/error.log.txt and shown on the console only
with -v. Without -j the final log, report and screenshots are moved to
runner/output/final.`,
		Example: `  # Every suite of a tests directory
  fleetrunner run -d ./tests -t Nightly

  # A single suite, leaving artifacts in place for the CI job
  fleetrunner run -f ./tests/Login_Flow.robot -j`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	opts.sel.register(cmd)
	cmd.Flags().StringVarP(&opts.label, "name", "t", workspace.DefaultLabel, "run label, used as the report title")
	cmd.Flags().BoolVarP(&opts.ci, "ci", "j", false, "CI mode: leave log, report and screenshots in place")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "also print errors on the console")
	return cmd
}

func (a *app) run(ctx context.Context, opts runOptions, out io.Writer) error {
	testsDir, suites, err := opts.sel.resolve()
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig(testsDir)
	if err != nil {
		return err
	}

	rc, err := workspace.New(workspace.Options{
		TestsDir:   testsDir,
		Label:      opts.label,
		CI:         opts.ci,
		Verbose:    opts.verbose,
		Layout:     cfg.Workspace,
		ResultsDir: cfg.Runner.ResultsDir,
	})
	if err != nil {
		return err
	}
	if err := rc.Prepare(); err != nil {
		return err
	}

	errLog, err := logging.OpenErrorLog(rc.ErrorLogPath)
	if err != nil {
		return err
	}
	defer errLog.Close() //nolint:errcheck // append-only log, nothing to recover

	log := logging.NewRun(cfg.Logging, a.opts.Version, errLog, opts.verbose).With("run_id", rc.RunID)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	p := pipeline.New(rc, cfg, a.runner())
	p.SetLogger(log)
	if a.opts.ServerFactory != nil {
		p.SetServerFactory(a.opts.ServerFactory)
	}
	closeSinks := attachSinks(ctx, cfg, rc, p, cancel, log)
	defer closeSinks()

	sum, err := p.Run(ctx, suites)
	printSummary(out, rc, sum)
	return err
}

// printSummary writes the console hint of a run.
func printSummary(out io.Writer, rc workspace.RunContext, sum pipeline.Summary) {
	fmt.Fprintf(out, "Run %s (%s): %s\n", rc.RunID, rc.Label, sum.Phase)
	fmt.Fprintf(out, "  devices: %d, suites: %d, failed suites: %d\n",
		sum.Devices, len(sum.Outcomes), sum.FailedSuites())

	if sum.Phase != pipeline.PhaseDone {
		fmt.Fprintf(out, "  see %s\n", rc.ErrorLogPath)
		return
	}
	dir := rc.FinalDir
	if rc.CI {
		dir = rc.StagingDir
	}
	fmt.Fprintf(out, "  log:    %s\n", filepath.Join(dir, workspace.LogName))
	fmt.Fprintf(out, "  report: %s\n", filepath.Join(dir, workspace.ReportName))
}
