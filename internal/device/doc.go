// Package device loads the fleet of test devices for a run.
//
// Each device is described by a record file (*.dat) in the workspace
// devices directory. Records double as robot argument files, so a line may
// read either "udid:emulator-5554" or "--variable udid:emulator-5554".
//
//	--variable udid:emulator-5554
//	--variable name:Pixel 7
//	--variable type:phone
//	--variable appium:4723
//	--variable appiumbp:4724
//	--variable osversion:14
//
// A record that cannot be read, lacks a UDID, carries unusable ports or
// reuses a port of an earlier record is dropped with a logged error. The
// remaining devices keep the order of their file names; that order defines
// the device index used by the runner and the artifact collector.
package device
