// Package scheduler drives the per-suite loop of a run.
//
// For every suite the parallel runner (pabot) is started once with one
// worker per device and the device records as argument files:
//
//	python -m pabot.pabot --verbose --processes 3 --pabotlib \
//	    --argumentfile0 runner/devices_conf/a.dat \
//	    --argumentfile1 runner/devices_conf/b.dat \
//	    --argumentfile2 runner/devices_conf/c.dat \
//	    --outputdir runner/output Login_Flow.robot
//
// The scheduler blocks until the runner exits, then collects the per-device
// results before moving to the next suite. There is no timeout; a hung
// runner holds the run.
package scheduler
