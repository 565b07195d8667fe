// Package artifact stages the per-device results of a suite and makes their
// screenshot references unique across the run.
//
// Every device numbers its screenshots from zero for every suite, so the
// raw results of a fleet all point at appium-screenshot-0.png,
// appium-screenshot-1.png and so on. Before the results are merged each
// reference is qualified with the device index and the suite display name:
//
//	src="appium-screenshot-5.png"  ->  src="2-Login Flow-appium-screenshot-5.png"
//
// Result documents are rewritten one at a time by the sequential driver.
package artifact
