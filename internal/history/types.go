package history

import (
	"errors"
	"time"
)

// DefaultListLimit is the number of runs ListRuns returns for a
// non-positive limit.
const DefaultListLimit = 20

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("history: run not found")

// Run is one pipeline run.
type Run struct {
	ID          string
	Label       string
	CI          bool
	TestsDir    string
	DeviceCount int

	// Phase is the last phase the run reached.
	Phase string

	// Error is the fatal error of the run, empty if it completed.
	Error string

	StartedAt time.Time

	// FinishedAt is zero while the run is in progress (or was killed).
	FinishedAt time.Time
}

// Finished reports whether the run recorded its end.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Duration returns the run time, zero for unfinished runs.
func (r Run) Duration() time.Duration {
	if !r.Finished() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SuiteRun is the outcome of one suite within a run.
type SuiteRun struct {
	RunID    string
	Position int
	Suite    string

	// ExitCode is the runner exit status, -1 if it could not be launched.
	ExitCode int
	Error    string

	// Collected and Failed count per-device artifacts.
	Collected int
	Failed    int

	StartedAt  time.Time
	FinishedAt time.Time
}

// ServerEvent is an automation server lifecycle change.
type ServerEvent struct {
	RunID  string
	UDID   string
	Port   int
	Status string
	PID    int
	Error  string
	At     time.Time
}
