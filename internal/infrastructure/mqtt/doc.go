// Package mqtt publishes run events and receives remote commands.
//
// A run publishes its phase changes, suite outcomes, automation server
// events and final summary under fleetrunner/run/<runID>/. Dashboards or
// other CI jobs can follow a run live; publishing a message on
// fleetrunner/run/<runID>/abort cancels it cooperatively.
//
// Each runner also keeps a retained online/offline status on
// fleetrunner/runner/<clientID>/status, with a Last Will so a crashed
// runner shows up as offline.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.RunState(runID), state, true)
package mqtt
