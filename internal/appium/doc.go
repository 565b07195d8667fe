// Package appium supervises one automation server per device.
//
// Before the first server starts, leftover servers of earlier runs are
// swept once with a coarse kill (killall node by default). Each device then
// gets its own worker that launches
//
//	appium -p <port> -bp <bootstrap port>
//
// in the tests directory and leaves it running for the whole run. Servers
// are not health-checked and not restarted; a launch failure leaves that
// device without a server and the run carries on. Server output is logged
// at debug level.
//
// StopAll sends SIGTERM to every server. With appium.stop_wait set, a server
// still alive after that long is sent SIGKILL.
package appium
