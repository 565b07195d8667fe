package report

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/nerrad567/fleet-runner/internal/device"
	"github.com/nerrad567/fleet-runner/internal/process"
	"github.com/nerrad567/fleet-runner/internal/suite"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

// noRendering disables a rebot presentation artifact.
const noRendering = "NONE"

// Logger defines the logging interface used by this package.
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

// Step is the outcome of one merger invocation.
type Step struct {
	// Name identifies the step: a device UDID or "global".
	Name string

	// Output is the merged result the step was asked to produce.
	Output string

	ExitCode int
	Err      error
}

// MergeResult collects the steps of a merge.
type MergeResult struct {
	Devices []Step
	Global  Step
}

// Merger combines staged results into per-device results and then into
// the unified result of the run.
type Merger struct {
	rc      workspace.RunContext
	binary  string
	noProxy string
	runner  process.Runner
	logger  Logger
}

// NewMerger creates a Merger that invokes binary through runner.
func NewMerger(rc workspace.RunContext, binary, noProxy string, runner process.Runner) *Merger {
	return &Merger{
		rc:      rc,
		binary:  binary,
		noProxy: noProxy,
		runner:  runner,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the merger.
func (m *Merger) SetLogger(logger Logger) {
	m.logger = logger
}

// DeviceArgs builds the merge of device index x over every suite. Only the
// merged data is produced; log and report rendering is suppressed.
func DeviceArgs(d device.Device, x int, suites []suite.Suite) []string {
	args := []string{
		"--name", d.ReportName(),
		"-o", workspace.DeviceResultName(d.UDID),
		"--log", noRendering,
		"--report", noRendering,
	}
	for _, s := range suites {
		args = append(args, workspace.StagedResultName(x, s.Name))
	}
	return args
}

// GlobalArgs builds the final merge over one result per device.
func GlobalArgs(label string, devices []device.Device) []string {
	args := []string{
		"--name", label,
		"-o", workspace.FinalResultName,
		"--report", workspace.ReportName,
		"--log", workspace.LogName,
	}
	for _, d := range devices {
		args = append(args, workspace.DeviceResultName(d.UDID))
	}
	return args
}

// Merge runs the per-device pass and then the global pass.
//
// Every step is attempted even when an earlier one failed; failures are
// logged and reported in the MergeResult. Inputs are passed as expected by
// name, a missing input is left for the merger to report.
func (m *Merger) Merge(ctx context.Context, devices []device.Device, suites []suite.Suite) MergeResult {
	var res MergeResult

	for x, d := range devices {
		if ctx.Err() != nil {
			return res
		}
		step := m.run(ctx, d.UDID, m.rc.DeviceResult(d.UDID), DeviceArgs(d, x, suites))
		res.Devices = append(res.Devices, step)
	}

	if ctx.Err() != nil {
		return res
	}
	res.Global = m.run(ctx, "global", filepath.Join(m.rc.StagingDir, workspace.FinalResultName), GlobalArgs(m.rc.Label, devices))

	return res
}

func (m *Merger) run(ctx context.Context, name, output string, args []string) Step {
	step := Step{Name: name, Output: output, ExitCode: -1}

	cmd := process.Command{
		Name:    "merger " + name,
		Binary:  m.binary,
		Args:    args,
		Env:     []string{"no_proxy=" + m.noProxy},
		WorkDir: m.rc.StagingDir,
	}
	m.logger.Info("merging results", "step", name, "command", cmd.String())

	res, err := m.runner.Run(ctx, cmd, func(line string) {
		m.logger.Debug("merger output", "step", name, "line", line)
	})
	step.ExitCode = res.ExitCode
	if err != nil {
		step.Err = err
		kind := "process"
		if errors.Is(err, process.ErrLaunch) {
			kind = "process_launch"
		}
		m.logger.Error("merger failed",
			"kind", kind,
			"step", name,
			"error", err,
		)
		return step
	}

	m.logger.Info("results merged", "step", name, "output", step.Output, "exit_code", res.ExitCode)
	return step
}
