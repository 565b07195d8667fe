package cli

import (
	"errors"
	"fmt"

	"github.com/nerrad567/fleet-runner/internal/pipeline"
)

// Process exit statuses.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitNoDevices = 15
	ExitUsage     = 21
)

// ErrUsage marks an invalid command line.
var ErrUsage = errors.New("usage error")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ExitCode maps the error returned by a command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, pipeline.ErrNoDevices):
		return ExitNoDevices
	default:
		return ExitFailure
	}
}
