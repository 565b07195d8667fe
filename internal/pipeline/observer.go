package pipeline

import (
	"context"
	"time"

	"github.com/nerrad567/fleet-runner/internal/appium"
	"github.com/nerrad567/fleet-runner/internal/report"
	"github.com/nerrad567/fleet-runner/internal/scheduler"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

// Observer follows a run. Errors returned by an observer are logged and
// never change the course of the run.
//
// ServerChanged is called from supervisor goroutines and may run
// concurrently with the other methods. The context passed to observers is
// not cancelled when the run is aborted.
type Observer interface {
	RunStarted(ctx context.Context, rc workspace.RunContext, started time.Time) error
	PhaseChanged(ctx context.Context, rc workspace.RunContext, from, to Phase, devices int) error
	ServerChanged(ctx context.Context, rc workspace.RunContext, e appium.Event) error
	SuiteCompleted(ctx context.Context, rc workspace.RunContext, o scheduler.Outcome) error
	RunCompleted(ctx context.Context, s Summary) error
}

// NopObserver ignores every notification. Embed it to implement only some
// methods of Observer.
type NopObserver struct{}

func (NopObserver) RunStarted(context.Context, workspace.RunContext, time.Time) error { return nil }
func (NopObserver) PhaseChanged(context.Context, workspace.RunContext, Phase, Phase, int) error {
	return nil
}
func (NopObserver) ServerChanged(context.Context, workspace.RunContext, appium.Event) error {
	return nil
}
func (NopObserver) SuiteCompleted(context.Context, workspace.RunContext, scheduler.Outcome) error {
	return nil
}
func (NopObserver) RunCompleted(context.Context, Summary) error { return nil }

// Summary is the result of a run.
type Summary struct {
	RunID string
	Label string

	// Phase is Done for a completed run, Failed otherwise.
	Phase Phase

	Devices  int
	Rejected int

	Outcomes     []scheduler.Outcome
	Merge        report.MergeResult
	Finalization report.Finalization

	Started  time.Time
	Finished time.Time

	// Err is the fatal error of the run.
	Err error
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// FailedSuites counts suites whose runner failed to launch or exited
// non-zero.
func (s Summary) FailedSuites() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.Passed() {
			n++
		}
	}
	return n
}
