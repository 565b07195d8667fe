package artifact

import (
	"context"
	"fmt"
	"os"

	"github.com/nerrad567/fleet-runner/internal/suite"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

// Logger defines the logging interface used by the Collector.
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

// DeviceArtifact is the collection outcome for one device of one suite.
type DeviceArtifact struct {
	DeviceIndex int
	Path        string
	Rewritten   int
	Err         error
}

// Collection is the outcome of collecting one suite.
type Collection struct {
	Suite     suite.Suite
	Artifacts []DeviceArtifact
}

// Collected counts the artifacts that reached staging.
func (c Collection) Collected() int {
	n := 0
	for _, a := range c.Artifacts {
		if a.Path != "" {
			n++
		}
	}
	return n
}

// Failed counts the artifacts with a relocation or rewrite error.
func (c Collection) Failed() int {
	n := 0
	for _, a := range c.Artifacts {
		if a.Err != nil {
			n++
		}
	}
	return n
}

// Collector moves raw per-device results into staging and qualifies their
// screenshot references. It processes one document at a time.
type Collector struct {
	rc     workspace.RunContext
	logger Logger
}

// NewCollector creates a Collector for a run.
func NewCollector(rc workspace.RunContext) *Collector {
	return &Collector{rc: rc, logger: noopLogger{}}
}

// SetLogger sets the logger for the collector.
func (c *Collector) SetLogger(logger Logger) {
	c.logger = logger
}

// Collect gathers the results of suite s for device indices [0, deviceCount).
//
// A result that cannot be relocated is logged and skipped. A result that
// cannot be rewritten is logged and stays in staging unrewritten. Collect
// never fails as a whole; the per-device outcomes are in the Collection.
func (c *Collector) Collect(ctx context.Context, s suite.Suite, deviceCount int) Collection {
	col := Collection{Suite: s, Artifacts: make([]DeviceArtifact, 0, deviceCount)}

	for x := 0; x < deviceCount; x++ {
		if ctx.Err() != nil {
			break
		}
		col.Artifacts = append(col.Artifacts, c.collectOne(s, x))
	}

	c.logger.Info("suite artifacts collected",
		"suite", s.Name,
		"collected", col.Collected(),
		"failed", col.Failed(),
	)
	return col
}

func (c *Collector) collectOne(s suite.Suite, x int) DeviceArtifact {
	art := DeviceArtifact{DeviceIndex: x}

	src := c.rc.RawResult(x)
	dst := c.rc.StagedResult(x, s.Name)
	if err := os.Rename(src, dst); err != nil {
		art.Err = fmt.Errorf("%w: %s: %w", ErrRelocate, src, err)
		c.logger.Error("relocating result",
			"kind", "io",
			"suite", s.Name,
			"device_index", x,
			"error", art.Err,
		)
		return art
	}
	art.Path = dst

	n, err := RewriteFile(dst, x, s.DisplayName())
	if err != nil {
		art.Err = err
		c.logger.Error("rewriting screenshots",
			"kind", "rewrite",
			"suite", s.Name,
			"device_index", x,
			"path", dst,
			"error", err,
		)
		return art
	}
	art.Rewritten = n

	c.logger.Debug("result staged",
		"suite", s.Name,
		"device_index", x,
		"path", dst,
		"rewritten", n,
	)
	return art
}
