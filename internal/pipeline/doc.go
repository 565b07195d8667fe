// Package pipeline drives a run from the device registry to the final
// report.
//
// The run moves through a fixed state machine (see Phase). Each phase is
// executed by one driver goroutine and blocks until its work is done, so
// suites never overlap on a device and only one result document is
// rewritten at a time. The automation servers are the only background
// work; they are signalled to stop once the merge is complete and on every
// early return.
//
// Observers follow the run without being able to change it: the history
// observer writes SQLite rows, the event observer publishes on MQTT and the
// metrics observer writes InfluxDB points. WatchAbort lets an MQTT message
// cancel a run.
package pipeline
