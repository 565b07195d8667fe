package pipeline

// Phase is a state of the run state machine:
//
//	Init → DevicesLoaded → ServersStarted → (SuiteRunning → SuiteCollected)* → Merging → Finalizing → Done
//
// Every non-terminal phase may also move to Failed.
type Phase string

// Run phases.
const (
	PhaseInit           Phase = "init"
	PhaseDevicesLoaded  Phase = "devices_loaded"
	PhaseServersStarted Phase = "servers_started"
	PhaseSuiteRunning   Phase = "suite_running"
	PhaseSuiteCollected Phase = "suite_collected"
	PhaseMerging        Phase = "merging"
	PhaseFinalizing     Phase = "finalizing"
	PhaseDone           Phase = "done"
	PhaseFailed         Phase = "failed"
)

var transitions = map[Phase][]Phase{
	PhaseInit:           {PhaseDevicesLoaded},
	PhaseDevicesLoaded:  {PhaseServersStarted},
	PhaseServersStarted: {PhaseSuiteRunning, PhaseMerging},
	PhaseSuiteRunning:   {PhaseSuiteCollected},
	PhaseSuiteCollected: {PhaseSuiteRunning, PhaseMerging},
	PhaseMerging:        {PhaseFinalizing},
	PhaseFinalizing:     {PhaseDone},
}

// CanTransition reports whether the state machine allows p → to.
func (p Phase) CanTransition(to Phase) bool {
	if p.Terminal() {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	for _, next := range transitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

func (p Phase) String() string {
	return string(p)
}
