package appium

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/fleet-runner/internal/device"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
	"github.com/nerrad567/fleet-runner/internal/process"
)

// Logger defines the logging interface used by the fleet.
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

// Server is a supervised automation server process.
// *process.Manager is the production implementation.
type Server interface {
	Start(ctx context.Context) error
	Interrupt()
	Stop() error
	Done() <-chan struct{}
	Stats() process.Stats
}

// ServerFactory creates the Server for one device.
type ServerFactory func(cfg process.Config, logger Logger) Server

// NewProcessServer is the default ServerFactory.
func NewProcessServer(cfg process.Config, logger Logger) Server {
	m := process.NewManager(cfg)
	m.SetLogger(logger)
	return m
}

// Event reports a server lifecycle change.
type Event struct {
	UDID   string
	Port   int
	Status process.Status
	PID    int
	Err    error
	Time   time.Time
}

// Supervisor owns the automation server of one device.
type Supervisor struct {
	Device device.Device
	server Server
}

// Stats returns the state of the device's server.
func (s *Supervisor) Stats() process.Stats {
	return s.server.Stats()
}

// ServerArgs builds the server arguments for a device.
func ServerArgs(d device.Device) []string {
	return []string{"-p", strconv.Itoa(d.Port), "-bp", strconv.Itoa(d.BootstrapPort)}
}

const defaultKillGrace = 5 * time.Second

// Fleet starts and stops one automation server per device.
//
// Thread Safety:
//   - StartAll, WaitStarted and StopAll may be called from different goroutines.
type Fleet struct {
	cfg     config.AppiumConfig
	noProxy string
	workDir string
	devices []device.Device
	runner  process.Runner
	factory ServerFactory
	logger  Logger
	onEvent func(Event)
	swept   sync.Once

	// killGrace bounds the wait for servers that were sent SIGKILL.
	killGrace time.Duration

	mu          sync.Mutex
	supervisors []*Supervisor
	starting    sync.WaitGroup
}

// NewFleet creates a fleet for devices. Servers run in workDir; runner
// executes the stray server sweep.
func NewFleet(cfg config.AppiumConfig, noProxy, workDir string, devices []device.Device, runner process.Runner) *Fleet {
	return &Fleet{
		cfg:       cfg,
		noProxy:   noProxy,
		workDir:   workDir,
		devices:   devices,
		runner:    runner,
		factory:   NewProcessServer,
		logger:    noopLogger{},
		killGrace: defaultKillGrace,
	}
}

// SetLogger sets the logger for the fleet and its servers.
func (f *Fleet) SetLogger(logger Logger) {
	f.logger = logger
}

// SetServerFactory replaces the way servers are created.
func (f *Fleet) SetServerFactory(factory ServerFactory) {
	f.factory = factory
}

// OnEvent registers a callback for server lifecycle changes. It must be set
// before StartAll and may be called from several goroutines.
func (f *Fleet) OnEvent(fn func(Event)) {
	f.onEvent = fn
}

// StartAll sweeps stray servers once, then launches one worker per device
// and returns without waiting for the launches. A device whose server fails
// to launch is logged and left without a server.
func (f *Fleet) StartAll(ctx context.Context) {
	f.swept.Do(func() { f.sweep(ctx) })

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range f.devices {
		sup := &Supervisor{Device: d}
		sup.server = f.factory(f.serverConfig(d), f.logger)
		f.supervisors = append(f.supervisors, sup)

		f.starting.Add(1)
		go func() {
			defer f.starting.Done()
			f.start(ctx, sup)
		}()
	}
}

func (f *Fleet) serverConfig(d device.Device) process.Config {
	return process.Config{
		Name:            "appium-" + d.UDID,
		Binary:          f.cfg.Binary,
		Args:            ServerArgs(d),
		Env:             []string{"no_proxy=" + f.noProxy},
		WorkDir:         f.workDir,
		GracefulTimeout: f.cfg.StopWait,
		CaptureOutput:   true,
		OnStart: func(pid int) {
			f.emit(Event{UDID: d.UDID, Port: d.Port, Status: process.StatusRunning, PID: pid})
		},
		OnStop: func(err error) {
			status := process.StatusStopped
			if err != nil {
				status = process.StatusFailed
			}
			f.emit(Event{UDID: d.UDID, Port: d.Port, Status: status, Err: err})
		},
	}
}

func (f *Fleet) start(ctx context.Context, sup *Supervisor) {
	if err := sup.server.Start(ctx); err != nil {
		f.logger.Error("automation server launch failed",
			"kind", "process_launch",
			"udid", sup.Device.UDID,
			"port", sup.Device.Port,
			"error", err,
		)
		f.emit(Event{UDID: sup.Device.UDID, Port: sup.Device.Port, Status: process.StatusFailed, Err: err})
		return
	}
	f.logger.Info("automation server started",
		"udid", sup.Device.UDID,
		"port", sup.Device.Port,
		"bootstrap_port", sup.Device.BootstrapPort,
	)
}

// sweep kills leftover servers from earlier runs. It runs once per fleet,
// before any server of this fleet exists, so it cannot hit a sibling.
func (f *Fleet) sweep(ctx context.Context) {
	if f.cfg.KillBinary == "" {
		return
	}
	cmd := process.Command{
		Name:   "stray server sweep",
		Binary: f.cfg.KillBinary,
		Args:   f.cfg.KillArgs,
	}
	res, err := f.runner.Run(ctx, cmd, func(line string) {
		f.logger.Debug("sweep output", "line", line)
	})
	if err != nil {
		f.logger.Error("stray server sweep failed", "kind", "process_launch", "error", err)
		return
	}
	f.logger.Debug("stray server sweep done", "exit_code", res.ExitCode)
}

func (f *Fleet) emit(e Event) {
	if f.onEvent == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	f.onEvent(e)
}

// WaitStarted blocks until every launch attempt of StartAll has returned.
func (f *Fleet) WaitStarted() {
	f.starting.Wait()
}

// Supervisors returns the supervisors created by StartAll.
func (f *Fleet) Supervisors() []*Supervisor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Supervisor, len(f.supervisors))
	copy(out, f.supervisors)
	return out
}

// StopAll sends a stop signal to every server.
//
// With wait <= 0 it returns as soon as SIGTERM is sent. Otherwise each
// server gets wait to exit before it is sent SIGKILL, and StopAll returns
// how many were still running when it gave up on them.
func (f *Fleet) StopAll(wait time.Duration) int {
	f.starting.Wait()
	sups := f.Supervisors()

	if wait <= 0 {
		for _, sup := range sups {
			sup.server.Interrupt()
		}
		f.logger.Info("automation servers signalled", "count", len(sups))
		return 0
	}

	for _, sup := range sups {
		sup := sup
		go func() {
			if err := sup.server.Stop(); err != nil {
				f.logger.Warn("automation server stop failed", "udid", sup.Device.UDID, "error", err)
			}
		}()
	}
	f.logger.Info("automation servers stopping", "count", len(sups), "wait", wait.String())

	deadline := time.NewTimer(wait + f.killGrace)
	defer deadline.Stop()

	for _, sup := range sups {
		done := sup.server.Done()
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-deadline.C:
			remaining := countRunning(sups)
			f.logger.Warn("automation servers still running after stop", "count", remaining)
			return remaining
		}
	}
	return 0
}

func countRunning(sups []*Supervisor) int {
	n := 0
	for _, sup := range sups {
		if done := sup.server.Done(); done != nil {
			select {
			case <-done:
			default:
				n++
			}
		}
	}
	return n
}
