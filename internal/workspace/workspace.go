package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
)

// DefaultLabel is the run label used when none is given.
const DefaultLabel = "Default-Test"

// Fixed names inside the workspace.
const (
	outputDirName  = "output"
	stagingDirName = "tmp"
	imageDirName   = "img"
	finalDirName   = "final"

	// FinalResultName is the unified result written by the global merge.
	FinalResultName = "output-final.xml"
	// LogName is the HTML log written by the global merge.
	LogName = "log.html"
	// ReportName is the HTML report written by the global merge.
	ReportName = "report.html"
)

// Options selects where and how a run happens.
type Options struct {
	// TestsDir holds the suites. The workspace lives below it.
	TestsDir string

	Label   string
	CI      bool
	Verbose bool

	// RunID identifies the run in history and events. Generated when empty.
	RunID string

	Layout     config.WorkspaceConfig
	ResultsDir string
}

// RunContext carries the per-run settings and paths. It is created once
// and passed by value; nothing in it changes during a run.
type RunContext struct {
	RunID   string
	Label   string
	CI      bool
	Verbose bool

	TestsDir   string
	RunnerDir  string
	DevicesDir string

	OutputDir  string
	StagingDir string
	ImageDir   string
	ResultsDir string
	FinalDir   string

	ErrorLogPath string
}

// New resolves the run layout. It does not touch the filesystem.
func New(opts Options) (RunContext, error) {
	if opts.TestsDir == "" {
		return RunContext{}, fmt.Errorf("workspace: tests directory is required")
	}
	testsDir, err := filepath.Abs(opts.TestsDir)
	if err != nil {
		return RunContext{}, fmt.Errorf("workspace: resolving tests directory: %w", err)
	}

	layout := opts.Layout
	if layout.RunnerDir == "" {
		layout.RunnerDir = "runner"
	}
	if layout.DevicesDir == "" {
		layout.DevicesDir = "devices_conf"
	}
	if layout.ErrorLog == "" {
		layout.ErrorLog = "error.log.txt"
	}
	resultsDir := opts.ResultsDir
	if resultsDir == "" {
		resultsDir = "pabot_results"
	}

	runnerDir := layout.RunnerDir
	if !filepath.IsAbs(runnerDir) {
		runnerDir = filepath.Join(testsDir, runnerDir)
	}
	outputDir := filepath.Join(runnerDir, outputDirName)

	label := opts.Label
	if label == "" {
		label = DefaultLabel
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return RunContext{
		RunID:        runID,
		Label:        label,
		CI:           opts.CI,
		Verbose:      opts.Verbose,
		TestsDir:     testsDir,
		RunnerDir:    runnerDir,
		DevicesDir:   filepath.Join(runnerDir, layout.DevicesDir),
		OutputDir:    outputDir,
		StagingDir:   filepath.Join(outputDir, stagingDirName),
		ImageDir:     filepath.Join(outputDir, imageDirName),
		ResultsDir:   filepath.Join(outputDir, resultsDir),
		FinalDir:     filepath.Join(outputDir, finalDirName),
		ErrorLogPath: filepath.Join(runnerDir, layout.ErrorLog),
	}, nil
}

// Prepare bootstraps the workspace: the output tree of a previous run is
// removed, then the runner, devices, output, staging and image directories
// are created. The error log and device records are left alone.
func (rc RunContext) Prepare() error {
	if err := os.RemoveAll(rc.OutputDir); err != nil {
		return fmt.Errorf("workspace: clearing output: %w", err)
	}

	for _, dir := range []string{rc.RunnerDir, rc.DevicesDir, rc.OutputDir, rc.StagingDir, rc.ImageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workspace: creating %s: %w", dir, err)
		}
	}
	return nil
}

// RawResult is where the runner leaves the result of device index x.
func (rc RunContext) RawResult(x int) string {
	return filepath.Join(rc.ResultsDir, "output"+strconv.Itoa(x)+".xml")
}

// StagedResultName is the name of a relocated partial result.
func StagedResultName(x int, suiteName string) string {
	return "output" + strconv.Itoa(x) + "." + suiteName + ".xml"
}

// StagedResult is the relocated partial result of device index x for a suite.
func (rc RunContext) StagedResult(x int, suiteName string) string {
	return filepath.Join(rc.StagingDir, StagedResultName(x, suiteName))
}

// DeviceResultName is the name of the accumulated result of one device.
func DeviceResultName(udid string) string {
	return "output." + udid + ".xml"
}

// DeviceResult is the accumulated result of one device.
func (rc RunContext) DeviceResult(udid string) string {
	return filepath.Join(rc.StagingDir, DeviceResultName(udid))
}
