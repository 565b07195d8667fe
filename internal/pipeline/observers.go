package pipeline

import (
	"context"
	"time"

	"github.com/nerrad567/fleet-runner/internal/appium"
	"github.com/nerrad567/fleet-runner/internal/history"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/influxdb"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/mqtt"
	"github.com/nerrad567/fleet-runner/internal/scheduler"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

// HistoryRecorder is the part of history.Store the history observer uses.
type HistoryRecorder interface {
	CreateRun(ctx context.Context, r history.Run) error
	UpdatePhase(ctx context.Context, runID, phase string, deviceCount int) error
	RecordSuite(ctx context.Context, sr history.SuiteRun) error
	RecordServerEvent(ctx context.Context, e history.ServerEvent) error
	FinishRun(ctx context.Context, runID, phase, errText string, finishedAt time.Time) error
}

// HistoryObserver records the run in the history database.
type HistoryObserver struct {
	store HistoryRecorder
}

// NewHistoryObserver returns an observer writing to store.
func NewHistoryObserver(store HistoryRecorder) *HistoryObserver {
	return &HistoryObserver{store: store}
}

func (h *HistoryObserver) RunStarted(ctx context.Context, rc workspace.RunContext, started time.Time) error {
	return h.store.CreateRun(ctx, history.Run{
		ID:        rc.RunID,
		Label:     rc.Label,
		CI:        rc.CI,
		TestsDir:  rc.TestsDir,
		Phase:     string(PhaseInit),
		StartedAt: started,
	})
}

func (h *HistoryObserver) PhaseChanged(ctx context.Context, rc workspace.RunContext, _, to Phase, devices int) error {
	if to.Terminal() {
		return nil
	}
	return h.store.UpdatePhase(ctx, rc.RunID, string(to), devices)
}

func (h *HistoryObserver) ServerChanged(ctx context.Context, rc workspace.RunContext, e appium.Event) error {
	return h.store.RecordServerEvent(ctx, history.ServerEvent{
		RunID:  rc.RunID,
		UDID:   e.UDID,
		Port:   e.Port,
		Status: string(e.Status),
		PID:    e.PID,
		Error:  errText(e.Err),
		At:     e.Time,
	})
}

func (h *HistoryObserver) SuiteCompleted(ctx context.Context, rc workspace.RunContext, o scheduler.Outcome) error {
	return h.store.RecordSuite(ctx, history.SuiteRun{
		RunID:      rc.RunID,
		Position:   o.Index,
		Suite:      o.Suite.Name,
		ExitCode:   o.ExitCode,
		Error:      errText(o.Err),
		Collected:  o.Collection.Collected(),
		Failed:     o.Collection.Failed(),
		StartedAt:  o.Started,
		FinishedAt: o.Finished,
	})
}

func (h *HistoryObserver) RunCompleted(ctx context.Context, s Summary) error {
	return h.store.FinishRun(ctx, s.RunID, string(s.Phase), errText(s.Err), s.Finished)
}

// Publisher is the part of mqtt.Client the event observer uses.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// EventObserver publishes the run on MQTT.
type EventObserver struct {
	NopObserver
	pub    Publisher
	topics mqtt.Topics
}

// NewEventObserver returns an observer publishing through pub.
func NewEventObserver(pub Publisher) *EventObserver {
	return &EventObserver{pub: pub}
}

// RunStateMessage is the retained payload of the run state topic.
type RunStateMessage struct {
	RunID     string    `json:"run_id"`
	Label     string    `json:"label"`
	Phase     Phase     `json:"phase"`
	From      Phase     `json:"from,omitempty"`
	Devices   int       `json:"devices"`
	Timestamp time.Time `json:"timestamp"`
}

// SuiteMessage is the payload of a suite topic.
type SuiteMessage struct {
	RunID      string  `json:"run_id"`
	Suite      string  `json:"suite"`
	Index      int     `json:"index"`
	ExitCode   int     `json:"exit_code"`
	Passed     bool    `json:"passed"`
	Error      string  `json:"error,omitempty"`
	Collected  int     `json:"collected"`
	Failed     int     `json:"collect_failed"`
	DurationMS float64 `json:"duration_ms"`
}

// ServerMessage is the payload of a device server topic.
type ServerMessage struct {
	RunID     string    `json:"run_id"`
	UDID      string    `json:"udid"`
	Port      int       `json:"port"`
	Status    string    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SummaryMessage is the retained payload of the run summary topic.
type SummaryMessage struct {
	RunID        string  `json:"run_id"`
	Label        string  `json:"label"`
	Phase        Phase   `json:"phase"`
	Devices      int     `json:"devices"`
	Rejected     int     `json:"rejected_devices"`
	Suites       int     `json:"suites"`
	FailedSuites int     `json:"failed_suites"`
	DurationS    float64 `json:"duration_s"`
	Error        string  `json:"error,omitempty"`
}

func (e *EventObserver) PhaseChanged(_ context.Context, rc workspace.RunContext, from, to Phase, devices int) error {
	return e.pub.PublishJSON(e.topics.RunState(rc.RunID), RunStateMessage{
		RunID:     rc.RunID,
		Label:     rc.Label,
		Phase:     to,
		From:      from,
		Devices:   devices,
		Timestamp: time.Now().UTC(),
	}, true)
}

func (e *EventObserver) ServerChanged(_ context.Context, rc workspace.RunContext, ev appium.Event) error {
	return e.pub.PublishJSON(e.topics.DeviceServer(rc.RunID, ev.UDID), ServerMessage{
		RunID:     rc.RunID,
		UDID:      ev.UDID,
		Port:      ev.Port,
		Status:    string(ev.Status),
		PID:       ev.PID,
		Error:     errText(ev.Err),
		Timestamp: ev.Time.UTC(),
	}, false)
}

func (e *EventObserver) SuiteCompleted(_ context.Context, rc workspace.RunContext, o scheduler.Outcome) error {
	return e.pub.PublishJSON(e.topics.RunSuite(rc.RunID, o.Suite.Name), SuiteMessage{
		RunID:      rc.RunID,
		Suite:      o.Suite.Name,
		Index:      o.Index,
		ExitCode:   o.ExitCode,
		Passed:     o.Passed(),
		Error:      errText(o.Err),
		Collected:  o.Collection.Collected(),
		Failed:     o.Collection.Failed(),
		DurationMS: float64(o.Duration().Milliseconds()),
	}, false)
}

func (e *EventObserver) RunCompleted(_ context.Context, s Summary) error {
	return e.pub.PublishJSON(e.topics.RunSummary(s.RunID), SummaryMessage{
		RunID:        s.RunID,
		Label:        s.Label,
		Phase:        s.Phase,
		Devices:      s.Devices,
		Rejected:     s.Rejected,
		Suites:       len(s.Outcomes),
		FailedSuites: s.FailedSuites(),
		DurationS:    s.Duration().Seconds(),
		Error:        errText(s.Err),
	}, true)
}

// MetricsWriter is the part of influxdb.Client the metrics observer uses.
type MetricsWriter interface {
	WriteSuite(s influxdb.SuiteSample)
	WriteServerEvent(s influxdb.ServerSample)
	WriteRun(r influxdb.RunSample)
}

// MetricsObserver writes run metrics to InfluxDB.
type MetricsObserver struct {
	NopObserver
	w MetricsWriter

	// devices is set by PhaseChanged before any suite completes.
	devices int
}

// NewMetricsObserver returns an observer writing through w.
func NewMetricsObserver(w MetricsWriter) *MetricsObserver {
	return &MetricsObserver{w: w}
}

func (m *MetricsObserver) PhaseChanged(_ context.Context, _ workspace.RunContext, _, to Phase, devices int) error {
	if to == PhaseDevicesLoaded {
		m.devices = devices
	}
	return nil
}

func (m *MetricsObserver) ServerChanged(_ context.Context, rc workspace.RunContext, e appium.Event) error {
	m.w.WriteServerEvent(influxdb.ServerSample{
		RunID:  rc.RunID,
		Label:  rc.Label,
		UDID:   e.UDID,
		Port:   e.Port,
		Status: string(e.Status),
		Time:   e.Time,
	})
	return nil
}

func (m *MetricsObserver) SuiteCompleted(_ context.Context, rc workspace.RunContext, o scheduler.Outcome) error {
	m.w.WriteSuite(influxdb.SuiteSample{
		RunID:     rc.RunID,
		Label:     rc.Label,
		Suite:     o.Suite.Name,
		Devices:   m.devices,
		ExitCode:  o.ExitCode,
		Launched:  o.Err == nil,
		Duration:  o.Duration(),
		Collected: o.Collection.Collected(),
		Failed:    o.Collection.Failed(),
		Finished:  o.Finished,
	})
	return nil
}

func (m *MetricsObserver) RunCompleted(_ context.Context, s Summary) error {
	m.w.WriteRun(influxdb.RunSample{
		RunID:        s.RunID,
		Label:        s.Label,
		Phase:        string(s.Phase),
		Devices:      s.Devices,
		Suites:       len(s.Outcomes),
		FailedSuites: s.FailedSuites(),
		Duration:     s.Duration(),
		Finished:     s.Finished,
	})
	return nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
