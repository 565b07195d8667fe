package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSuite  = "suite_run"
	MeasurementServer = "appium_server"
	MeasurementRun    = "pipeline_run"
)

// SuiteSample is the outcome of one suite across the fleet.
type SuiteSample struct {
	RunID     string
	Label     string
	Suite     string
	Devices   int
	ExitCode  int
	Launched  bool
	Duration  time.Duration
	Collected int
	Failed    int
	Finished  time.Time
}

// ServerSample is one automation server lifecycle change.
type ServerSample struct {
	RunID  string
	Label  string
	UDID   string
	Port   int
	Status string
	Time   time.Time
}

// RunSample summarises a completed run.
type RunSample struct {
	RunID        string
	Label        string
	Phase        string
	Devices      int
	Suites       int
	FailedSuites int
	Duration     time.Duration
	Finished     time.Time
}

// SuitePoint builds the point for a suite outcome.
//
// Label and suite are tags; the run ID is a field to keep series
// cardinality bounded by the suite catalogue.
func SuitePoint(s SuiteSample) *write.Point {
	return write.NewPoint(
		MeasurementSuite,
		map[string]string{
			"label": s.Label,
			"suite": s.Suite,
		},
		map[string]interface{}{
			"run_id":           s.RunID,
			"devices":          s.Devices,
			"exit_code":        s.ExitCode,
			"launched":         s.Launched,
			"duration_seconds": s.Duration.Seconds(),
			"collected":        s.Collected,
			"collect_failed":   s.Failed,
		},
		s.Finished,
	)
}

// ServerPoint builds the point for a server lifecycle change.
func ServerPoint(s ServerSample) *write.Point {
	return write.NewPoint(
		MeasurementServer,
		map[string]string{
			"label":  s.Label,
			"udid":   s.UDID,
			"status": s.Status,
		},
		map[string]interface{}{
			"run_id": s.RunID,
			"port":   s.Port,
		},
		s.Time,
	)
}

// RunPoint builds the point for a run summary.
func RunPoint(r RunSample) *write.Point {
	return write.NewPoint(
		MeasurementRun,
		map[string]string{
			"label": r.Label,
			"phase": r.Phase,
		},
		map[string]interface{}{
			"run_id":           r.RunID,
			"devices":          r.Devices,
			"suites":           r.Suites,
			"failed_suites":    r.FailedSuites,
			"duration_seconds": r.Duration.Seconds(),
		},
		r.Finished,
	)
}

// WriteSuite records a suite outcome. Non-blocking.
func (c *Client) WriteSuite(s SuiteSample) {
	c.writePoint(SuitePoint(s))
}

// WriteServerEvent records a server lifecycle change. Non-blocking.
func (c *Client) WriteServerEvent(s ServerSample) {
	c.writePoint(ServerPoint(s))
}

// WriteRun records a run summary. Non-blocking.
func (c *Client) WriteRun(r RunSample) {
	c.writePoint(RunPoint(r))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
