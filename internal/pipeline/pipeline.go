package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/fleet-runner/internal/appium"
	"github.com/nerrad567/fleet-runner/internal/artifact"
	"github.com/nerrad567/fleet-runner/internal/device"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
	"github.com/nerrad567/fleet-runner/internal/process"
	"github.com/nerrad567/fleet-runner/internal/report"
	"github.com/nerrad567/fleet-runner/internal/scheduler"
	"github.com/nerrad567/fleet-runner/internal/suite"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

// Logger defines the logging interface used by the pipeline.
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

// Pipeline drives one run through its phases.
//
// A single driver goroutine executes every phase in order; only the
// automation servers run in the background. Failures inside a phase are
// logged and the run moves on. The one fatal condition is an empty fleet,
// detected before any process is started.
type Pipeline struct {
	rc      workspace.RunContext
	cfg     *config.Config
	runner  process.Runner
	factory appium.ServerFactory

	observers []Observer
	logger    Logger

	mu    sync.Mutex
	phase Phase

	// ended is set once RunCompleted has been sent. Server events that
	// arrive later are only logged; the sinks may already be closed.
	events sync.RWMutex
	ended  bool
}

// New creates a Pipeline. runner executes the parallel runner, the result
// merger and the stray server sweep.
func New(rc workspace.RunContext, cfg *config.Config, runner process.Runner) *Pipeline {
	return &Pipeline{
		rc:     rc,
		cfg:    cfg,
		runner: runner,
		logger: noopLogger{},
		phase:  PhaseInit,
	}
}

// SetLogger sets the logger for the pipeline and every component it drives.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// SetServerFactory replaces how automation servers are created.
func (p *Pipeline) SetServerFactory(factory appium.ServerFactory) {
	p.factory = factory
}

// AddObserver registers an observer. Must be called before Run.
func (p *Pipeline) AddObserver(o Observer) {
	p.observers = append(p.observers, o)
}

// Phase returns the current phase.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Run executes the run over suites.
//
// Steps:
//  1. Load the device registry; an empty fleet ends the run with ErrNoDevices
//  2. Start one automation server per device and wait for the warm-up
//  3. Run and collect every suite, strictly one after the other
//  4. Merge per device, then globally
//  5. Stop the servers and finalize the artifacts
//
// Cancelling ctx stops the run before its next step; servers are always
// stopped before the run is reported complete. Server events that arrive
// after that are logged and not passed to observers.
//
// Returns:
//   - Summary: What happened, also for failed runs
//   - error: ErrNoDevices, ErrAborted, or nil for a completed run
func (p *Pipeline) Run(ctx context.Context, suites []suite.Suite) (Summary, error) {
	sum := Summary{
		RunID:   p.rc.RunID,
		Label:   p.rc.Label,
		Started: time.Now(),
	}
	// Observers must still see the end of an aborted run.
	octx := context.WithoutCancel(ctx)

	p.notify("run started", func(o Observer) error {
		return o.RunStarted(octx, p.rc, sum.Started)
	})
	p.logger.Info("run started",
		"run_id", p.rc.RunID,
		"label", p.rc.Label,
		"ci", p.rc.CI,
		"suites", len(suites),
	)

	reg, err := device.LoadDir(ctx, p.rc.DevicesDir, p.logger)
	if err != nil {
		p.logger.Error("device records unavailable", "kind", "config", "dir", p.rc.DevicesDir, "error", err)
		return p.fail(octx, sum, fmt.Errorf("%w: %w", ErrNoDevices, err))
	}
	devices := reg.Devices()
	sum.Devices = len(devices)
	sum.Rejected = len(reg.Rejected())
	if len(devices) == 0 {
		p.logger.Error("no usable device record", "kind", "config", "dir", p.rc.DevicesDir)
		return p.fail(octx, sum, ErrNoDevices)
	}
	p.transition(octx, PhaseDevicesLoaded, len(devices))

	fleet := p.newFleet(octx, devices)
	var stopOnce sync.Once
	stopServers := func() {
		stopOnce.Do(func() {
			if remaining := fleet.StopAll(p.cfg.Appium.StopWait); remaining > 0 {
				p.logger.Warn("automation servers still running", "count", remaining)
			}
		})
	}
	defer stopServers()

	fleet.StartAll(ctx)
	p.transition(octx, PhaseServersStarted, len(devices))
	if err := p.warmUp(ctx); err != nil {
		stopServers()
		return p.abort(ctx, octx, sum, err)
	}

	sched := scheduler.New(p.rc, p.cfg.Runner, p.cfg.Proxy.NoProxy, devices, p.runner, p.newCollector())
	sched.SetLogger(p.logger)
	sched.OnSuiteStart(func(int, suite.Suite) {
		p.transition(octx, PhaseSuiteRunning, len(devices))
	})
	sum.Outcomes, err = sched.Run(ctx, suites, func(o scheduler.Outcome) {
		p.transition(octx, PhaseSuiteCollected, len(devices))
		p.notify("suite completed", func(obs Observer) error {
			return obs.SuiteCompleted(octx, p.rc, o)
		})
	})
	if err != nil {
		stopServers()
		return p.abort(ctx, octx, sum, err)
	}

	p.transition(octx, PhaseMerging, len(devices))
	merger := report.NewMerger(p.rc, p.cfg.Merger.Binary, p.cfg.Proxy.NoProxy, p.runner)
	merger.SetLogger(p.logger)
	sum.Merge = merger.Merge(ctx, devices, suites)
	stopServers()
	if err := ctx.Err(); err != nil {
		return p.abort(ctx, octx, sum, err)
	}

	p.transition(octx, PhaseFinalizing, len(devices))
	sum.Finalization = report.Finalize(p.rc, p.logger)

	p.transition(octx, PhaseDone, len(devices))
	sum.Phase = PhaseDone
	sum.Finished = time.Now()
	p.complete(octx, sum)
	return sum, nil
}

func (p *Pipeline) newFleet(octx context.Context, devices []device.Device) *appium.Fleet {
	fleet := appium.NewFleet(p.cfg.Appium, p.cfg.Proxy.NoProxy, p.rc.TestsDir, devices, p.runner)
	fleet.SetLogger(p.logger)
	if p.factory != nil {
		fleet.SetServerFactory(p.factory)
	}
	fleet.OnEvent(func(e appium.Event) {
		p.serverChanged(octx, e)
	})
	return fleet
}

func (p *Pipeline) serverChanged(octx context.Context, e appium.Event) {
	p.events.RLock()
	defer p.events.RUnlock()
	if p.ended {
		p.logger.Debug("server event after run end", "udid", e.UDID, "status", e.Status)
		return
	}
	p.notify("server changed", func(o Observer) error {
		return o.ServerChanged(octx, p.rc, e)
	})
}

func (p *Pipeline) newCollector() *artifact.Collector {
	c := artifact.NewCollector(p.rc)
	c.SetLogger(p.logger)
	return c
}

// warmUp gives the servers time to bind their ports. There is no readiness
// probe.
func (p *Pipeline) warmUp(ctx context.Context) error {
	wait := p.cfg.Appium.Warmup
	if wait <= 0 {
		return ctx.Err()
	}
	p.logger.Debug("waiting for automation servers", "warmup", wait.String())

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transition moves the state machine and notifies observers.
func (p *Pipeline) transition(octx context.Context, to Phase, devices int) {
	p.mu.Lock()
	from := p.phase
	if !from.CanTransition(to) {
		p.mu.Unlock()
		p.logger.Warn("invalid phase transition", "from", from, "to", to)
		return
	}
	p.phase = to
	p.mu.Unlock()

	p.logger.Debug("phase changed", "from", from, "to", to)
	p.notify("phase changed", func(o Observer) error {
		return o.PhaseChanged(octx, p.rc, from, to, devices)
	})
}

func (p *Pipeline) fail(octx context.Context, sum Summary, err error) (Summary, error) {
	p.transition(octx, PhaseFailed, sum.Devices)
	sum.Phase = PhaseFailed
	sum.Err = err
	sum.Finished = time.Now()
	p.complete(octx, sum)
	return sum, err
}

// abort ends a cancelled run, keeping the cancellation cause.
func (p *Pipeline) abort(ctx, octx context.Context, sum Summary, err error) (Summary, error) {
	if cause := context.Cause(ctx); cause != nil {
		err = cause
	}
	if !errors.Is(err, ErrAborted) {
		err = fmt.Errorf("%w: %w", ErrAborted, err)
	}
	p.logger.Warn("run aborted", "phase", p.Phase(), "error", err)
	return p.fail(octx, sum, err)
}

func (p *Pipeline) complete(octx context.Context, sum Summary) {
	p.logger.Info("run finished",
		"phase", sum.Phase,
		"devices", sum.Devices,
		"suites", len(sum.Outcomes),
		"failed_suites", sum.FailedSuites(),
		"duration", sum.Duration().String(),
	)

	p.events.Lock()
	p.ended = true
	p.events.Unlock()

	p.notify("run completed", func(o Observer) error {
		return o.RunCompleted(octx, sum)
	})
}

// notify calls fn for every observer, logging failures.
func (p *Pipeline) notify(what string, fn func(Observer) error) {
	for _, o := range p.observers {
		if err := fn(o); err != nil {
			p.logger.Warn("observer failed", "event", what, "observer", fmt.Sprintf("%T", o), "error", err)
		}
	}
}
