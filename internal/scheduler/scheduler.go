package scheduler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nerrad567/fleet-runner/internal/artifact"
	"github.com/nerrad567/fleet-runner/internal/device"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
	"github.com/nerrad567/fleet-runner/internal/process"
	"github.com/nerrad567/fleet-runner/internal/suite"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Collector stages the results of a finished suite.
type Collector interface {
	Collect(ctx context.Context, s suite.Suite, deviceCount int) artifact.Collection
}

// Outcome describes one scheduled suite.
type Outcome struct {
	Suite    suite.Suite
	Index    int
	Started  time.Time
	Finished time.Time

	// ExitCode is the runner exit status, -1 when it never ran.
	ExitCode int

	// Err is a launch failure of the runner.
	Err error

	Collection artifact.Collection
}

// Duration is the wall time of the runner and the collection.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Passed reports whether the runner started and exited with status zero.
func (o Outcome) Passed() bool {
	return o.Err == nil && o.ExitCode == 0
}

// Scheduler runs the suites of a run one after the other across the whole
// fleet.
//
// Each suite gets exactly one runner invocation with one worker per device.
// The next suite starts only after the runner of the previous one has
// exited and its results have been collected, so a device never hosts two
// sessions at once.
type Scheduler struct {
	rc        workspace.RunContext
	cfg       config.RunnerConfig
	noProxy   string
	devices   []device.Device
	runner    process.Runner
	collector Collector
	logger    Logger
	onStart   func(index int, s suite.Suite)
}

// New creates a Scheduler for a fleet.
func New(rc workspace.RunContext, cfg config.RunnerConfig, noProxy string, devices []device.Device, runner process.Runner, collector Collector) *Scheduler {
	return &Scheduler{
		rc:        rc,
		cfg:       cfg,
		noProxy:   noProxy,
		devices:   devices,
		runner:    runner,
		collector: collector,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// OnSuiteStart registers a callback invoked before each runner launch.
func (s *Scheduler) OnSuiteStart(fn func(index int, su suite.Suite)) {
	s.onStart = fn
}

// RunnerArgs builds the runner argument list for one suite.
//
// The process count is pinned to the fleet size and device i is bound to
// argument file slot i, so every worker drives its own device.
func RunnerArgs(cfg config.RunnerConfig, devices []device.Device, outputDir, suiteFile string) []string {
	args := make([]string, 0, len(cfg.Args)+2*len(devices)+8)
	args = append(args, cfg.Args...)
	if cfg.Verbose {
		args = append(args, "--verbose")
	}
	args = append(args, "--processes", strconv.Itoa(len(devices)))
	if cfg.PabotLib {
		args = append(args, "--pabotlib")
	}
	for i, d := range devices {
		args = append(args, "--argumentfile"+strconv.Itoa(i), d.ConfPath)
	}
	args = append(args, "--outputdir", outputDir, suiteFile)
	return args
}

// Command returns the runner invocation for a suite.
func (s *Scheduler) Command(su suite.Suite) process.Command {
	return process.Command{
		Name:    "runner " + su.Name,
		Binary:  s.cfg.Binary,
		Args:    RunnerArgs(s.cfg, s.devices, s.rc.OutputDir, su.File),
		Env:     []string{"no_proxy=" + s.noProxy},
		WorkDir: s.rc.TestsDir,
	}
}

// Run executes suites in order.
//
// A runner that fails to launch is logged and its suite is still collected,
// so the missing results surface as relocation errors. onSuite, when set,
// is called after each collection. Cancelling ctx stops the loop before
// the next suite and returns ctx.Err() with the outcomes so far.
func (s *Scheduler) Run(ctx context.Context, suites []suite.Suite, onSuite func(Outcome)) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(suites))

	for i, su := range suites {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		out := s.runSuite(ctx, i, su)
		outcomes = append(outcomes, out)
		if onSuite != nil {
			onSuite(out)
		}

		if errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded) {
			return outcomes, ctx.Err()
		}
	}

	return outcomes, nil
}

func (s *Scheduler) runSuite(ctx context.Context, index int, su suite.Suite) Outcome {
	if s.onStart != nil {
		s.onStart(index, su)
	}
	out := Outcome{Suite: su, Index: index, Started: time.Now(), ExitCode: -1}
	cmd := s.Command(su)

	s.logger.Info("suite started",
		"suite", su.Name,
		"index", index,
		"devices", len(s.devices),
		"command", cmd.String(),
	)

	res, err := s.runner.Run(ctx, cmd, func(line string) {
		s.logger.Info("runner output", "suite", su.Name, "line", line)
	})
	out.ExitCode = res.ExitCode
	if err != nil {
		out.Err = err
		kind := "process_launch"
		if !errors.Is(err, process.ErrLaunch) {
			kind = "process"
		}
		s.logger.Error("runner failed",
			"kind", kind,
			"suite", su.Name,
			"error", err,
		)
	}

	if ctx.Err() == nil {
		out.Collection = s.collector.Collect(ctx, su, len(s.devices))
	}
	out.Finished = time.Now()

	s.logger.Info("suite finished",
		"suite", su.Name,
		"exit_code", out.ExitCode,
		"collected", out.Collection.Collected(),
		"duration", out.Duration().String(),
	)
	return out
}
