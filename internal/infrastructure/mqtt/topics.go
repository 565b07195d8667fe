package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every fleetrunner topic.
const TopicPrefix = "fleetrunner"

// Topics provides builders for fleetrunner MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.RunState("6f1c...")          // fleetrunner/run/6f1c.../state
//	topics.DeviceServer("6f1c...", "R58M") // fleetrunner/run/6f1c.../device/R58M/server
type Topics struct{}

// RunnerStatus is the retained online/offline status of a runner instance.
//
// Example: fleetrunner/runner/fleetrunner-ci-3/status
func (Topics) RunnerStatus(clientID string) string {
	return fmt.Sprintf("%s/runner/%s/status", TopicPrefix, Segment(clientID))
}

// RunState carries pipeline phase changes of a run (retained).
//
// Example: fleetrunner/run/<runID>/state
func (Topics) RunState(runID string) string {
	return fmt.Sprintf("%s/run/%s/state", TopicPrefix, runID)
}

// RunSuite carries the outcome of one suite.
//
// Example: fleetrunner/run/<runID>/suite/Login
func (Topics) RunSuite(runID, suite string) string {
	return fmt.Sprintf("%s/run/%s/suite/%s", TopicPrefix, runID, Segment(suite))
}

// DeviceServer carries automation server lifecycle events of a device.
//
// Example: fleetrunner/run/<runID>/device/emulator-5554/server
func (Topics) DeviceServer(runID, udid string) string {
	return fmt.Sprintf("%s/run/%s/device/%s/server", TopicPrefix, runID, Segment(udid))
}

// RunSummary carries the final summary of a run (retained).
func (Topics) RunSummary(runID string) string {
	return fmt.Sprintf("%s/run/%s/summary", TopicPrefix, runID)
}

// RunAbort is subscribed by a running pipeline; any message cancels the run.
func (Topics) RunAbort(runID string) string {
	return fmt.Sprintf("%s/run/%s/abort", TopicPrefix, runID)
}

// AllRuns matches every run topic.
func (Topics) AllRuns() string {
	return TopicPrefix + "/run/#"
}

// ParseRunTopic splits a run topic into its run ID and the remainder.
//
// Example: "fleetrunner/run/abc/suite/Login" -> ("abc", "suite/Login", true)
func ParseRunTopic(topic string) (runID, rest string, ok bool) {
	tail, found := strings.CutPrefix(topic, TopicPrefix+"/run/")
	if !found {
		return "", "", false
	}
	runID, rest, found = strings.Cut(tail, "/")
	if !found || runID == "" || rest == "" {
		return "", "", false
	}
	return runID, rest, true
}

// Segment makes s safe to use as a single topic level: the level
// separator and wildcards are replaced with "_".
func Segment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, s)
}
