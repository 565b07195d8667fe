package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/fleet-runner/internal/appium"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
	"github.com/nerrad567/fleet-runner/internal/process"
)

// Options wires the commands to their environment.
type Options struct {
	Version string

	Stdout io.Writer
	Stderr io.Writer

	// Runner executes the collaborators. Nil means real child processes.
	Runner process.Runner

	// ServerFactory creates the automation servers. Nil means real
	// child processes.
	ServerFactory appium.ServerFactory
}

// app holds the state shared by every command of one invocation.
type app struct {
	opts       Options
	configPath string
}

// NewRootCommand builds the fleetrunner command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "fleetrunner",
		Short: "Run Robot Framework suites across a fleet of mobile devices",
		Long: `fleetrunner starts one Appium server per configured device, runs every
suite across the whole fleet with pabot, one suite at a time, and merges the
per-device results into a single log and report.

Device records are read from <tests dir>/runner/devices_conf/*.dat.`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErrorf("%v", err)
	})

	root.PersistentFlags().StringVar(&a.configPath, "config", "",
		"config file (default is $"+config.EnvConfigPath+", then <tests dir>/"+config.DefaultFileName+")")

	root.AddCommand(
		a.newRunCommand(),
		a.newDevicesCommand(),
		a.newHistoryCommand(),
	)
	return root
}

// Execute runs the command line in os.Args.
func Execute(ctx context.Context, version string) error {
	return NewRootCommand(Options{Version: version}).ExecuteContext(ctx)
}

// loadConfig resolves and loads the configuration for a tests directory.
func (a *app) loadConfig(testsDir string) (*config.Config, error) {
	path, err := config.Resolve(a.configPath, testsDir)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func (a *app) runner() process.Runner {
	if a.opts.Runner != nil {
		return a.opts.Runner
	}
	return process.Exec{}
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageErrorf("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return nil
}
