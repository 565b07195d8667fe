// fleetrunner runs Robot Framework suites across a fleet of mobile devices.
//
// Each device gets its own Appium server. Suites run one after the other,
// each across the whole fleet through pabot, and the per-device results are
// merged by rebot into one log and report.
//
// Exit statuses:
//   - 0: the run completed
//   - 1: runtime error or aborted run
//   - 15: no usable device record
//   - 21: invalid command line
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/fleet-runner/migrations"

	"github.com/nerrad567/fleet-runner/internal/cli"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
)

func main() {
	// Ctrl+C or SIGTERM aborts the run; servers are still stopped.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.Execute(ctx, version+" ("+commit+")")
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}
