package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// defaultGracefulTimeout applies when Config.GracefulTimeout is zero.
const defaultGracefulTimeout = 10 * time.Second

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// CaptureOutput logs stdout/stderr lines at debug level.
	// When false the output is discarded.
	CaptureOutput bool

	// OnStart is called when the process starts successfully.
	OnStart func(pid int)

	// OnStop is called once the process has exited. err is nil when the
	// exit was requested through Interrupt or Stop.
	OnStop func(err error)
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager manages the lifecycle of one long-running subprocess.
//
// A Manager starts its process once. It never restarts it and never probes
// it: an unexpected exit is recorded and reported through OnStop.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	outputs       []io.Closer
	status        Status
	lastError     error
	startTime     time.Time
	stopRequested bool

	done chan struct{}
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the subprocess and begins monitoring it.
//
// A failure to launch is returned wrapped in ErrLaunch and leaves the
// manager in StatusFailed. Cancelling ctx terminates the process group.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s is already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor()

	return nil
}

// startProcess actually starts the subprocess.
func (m *Manager) startProcess(ctx context.Context) error {
	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := newCommand(ctx, Command{
		Name:    m.config.Name,
		Binary:  m.config.Binary,
		Args:    m.config.Args,
		Env:     m.config.Env,
		WorkDir: m.config.WorkDir,
	}, m.config.GracefulTimeout)

	var outputs []io.Closer
	if m.config.CaptureOutput {
		stdout, stderr := m.pipeOutput("stdout"), m.pipeOutput("stderr")
		cmd.Stdout, cmd.Stderr = stdout, stderr
		outputs = []io.Closer{stdout, stderr}
	}

	if err := cmd.Start(); err != nil {
		closeAll(outputs)
		return fmt.Errorf("%w: %s: %w", ErrLaunch, m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.outputs = outputs
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	m.logger.Info("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	if m.config.OnStart != nil {
		m.config.OnStart(cmd.Process.Pid)
	}

	return nil
}

// pipeOutput returns a writer whose lines are logged by captureOutput.
// exec copies the child's output into it, so Wait returns only after the
// last line has been read.
func (m *Manager) pipeOutput(stream string) *io.PipeWriter {
	pr, pw := io.Pipe()
	go m.captureOutput(stream, pr)
	return pw
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// captureOutput logs each line read from r at debug level.
func (m *Manager) captureOutput(stream string, r io.Reader) {
	err := readLines(r, func(line string) {
		m.logger.Debug("process output",
			"name", m.config.Name,
			"stream", stream,
			"line", line,
		)
	})
	if err != nil {
		m.logger.Warn("process output unreadable",
			"name", m.config.Name,
			"stream", stream,
			"error", err,
		)
	}
}

// monitor waits for the process to exit and records the outcome.
func (m *Manager) monitor() {
	m.mu.RLock()
	cmd := m.cmd
	done := m.done
	outputs := m.outputs
	m.mu.RUnlock()

	err := cmd.Wait()
	closeAll(outputs)

	m.mu.Lock()
	stopRequested := m.stopRequested
	if stopRequested {
		m.status = StatusStopped
	} else {
		m.status = StatusFailed
		if err == nil {
			err = errors.New("exited without being asked to stop")
		}
		m.lastError = err
	}
	m.mu.Unlock()

	if stopRequested {
		m.logger.Info("process stopped as requested", "name", m.config.Name)
		err = nil
	} else {
		m.logger.Warn("process exited unexpectedly",
			"name", m.config.Name,
			"error", err,
		)
	}

	if m.config.OnStop != nil {
		m.config.OnStop(err)
	}

	close(done)
}

// Interrupt asks the process group to terminate with SIGTERM and returns
// without waiting. Use Done to observe the exit.
func (m *Manager) Interrupt() {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return
	}
	m.stopRequested = true
	cmd := m.cmd
	m.mu.Unlock()

	m.signal(cmd, syscall.SIGTERM)
}

// Stop asks the process group to terminate with SIGTERM and blocks until it
// exits. A process still alive after GracefulTimeout gets SIGKILL.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	m.mu.Unlock()

	m.logger.Info("stopping process", "name", m.config.Name, "pid", cmd.Process.Pid)
	m.signal(cmd, syscall.SIGTERM)

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}

	<-done
	m.logger.Info("process killed", "name", m.config.Name)

	return nil
}

// signal delivers sig to the process group created via Setpgid.
func (m *Manager) signal(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to signal process group",
			"name", m.config.Name,
			"signal", sig.String(),
			"error", err,
		)
	}
}

// Done returns a channel closed once the process has exited or failed to
// launch. It is nil before Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// Stats returns statistics about the managed process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:   m.config.Name,
		Status: m.status,
	}

	if m.cmd != nil && m.cmd.Process != nil {
		stats.PID = m.cmd.Process.Pid
	}

	if m.status == StatusRunning {
		stats.Uptime = time.Since(m.startTime)
	}

	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}

	return stats
}

// newCommand builds an exec.Cmd in its own process group. Cancelling ctx
// sends SIGTERM to the group and escalates to SIGKILL after grace.
func newCommand(ctx context.Context, c Command, grace time.Duration) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec // binaries come from operator configuration

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	if c.Env != nil {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.WorkDir != "" {
		cmd.Dir = c.WorkDir
	}

	return cmd
}
