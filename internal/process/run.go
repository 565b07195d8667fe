package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Command describes one invocation of an external collaborator.
type Command struct {
	// Name is a human-readable identifier for logging.
	Name string

	Binary  string
	Args    []string
	Env     []string
	WorkDir string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Result describes a finished invocation.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// LineFunc receives each line of combined stdout/stderr output.
type LineFunc func(line string)

// Runner executes one-shot commands and blocks until they exit.
type Runner interface {
	Run(ctx context.Context, cmd Command, onLine LineFunc) (Result, error)
}

// Exec is the Runner backed by real child processes.
type Exec struct {
	// GracefulTimeout bounds how long a cancelled command may take to exit
	// after SIGTERM before it is killed.
	GracefulTimeout time.Duration
}

// Run implements Runner.
func (e Exec) Run(ctx context.Context, cmd Command, onLine LineFunc) (Result, error) {
	grace := e.GracefulTimeout
	if grace == 0 {
		grace = defaultGracefulTimeout
	}
	return Run(ctx, cmd, grace, onLine)
}

// Run starts cmd, streams its combined stdout and stderr to onLine one line
// at a time, and blocks until it exits. Lines longer than 1 MiB are cut.
//
// A non-zero exit status is reported through Result.ExitCode with a nil
// error. Failing to start returns an error wrapping ErrLaunch. Cancelling
// ctx terminates the process group and returns ctx.Err().
//
// Parameters:
//   - ctx: Cancels the command
//   - cmd: Command to run
//   - grace: Delay between SIGTERM and SIGKILL on cancellation
//   - onLine: Output sink, may be nil
//
// Returns:
//   - Result: Exit code and wall time
//   - error: Launch failure or cancellation
func Run(ctx context.Context, cmd Command, grace time.Duration, onLine LineFunc) (Result, error) {
	c := newCommand(ctx, cmd, grace)

	stdout, err := c.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s: creating stdout pipe: %w", ErrLaunch, cmd.Name, err)
	}
	c.Stderr = c.Stdout

	started := time.Now()
	if err := c.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s: %w", ErrLaunch, cmd.Name, err)
	}

	readErr := readLines(stdout, onLine)

	waitErr := c.Wait()
	res := Result{
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(started),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("waiting for %s: %w", cmd.Name, waitErr)
	}
	if readErr != nil {
		return res, fmt.Errorf("reading output of %s: %w", cmd.Name, readErr)
	}

	return res, nil
}
