// Package workspace lays out the directories of a run.
//
// Everything a run writes lives below <tests>/runner:
//
//	runner/
//	├── devices_conf/          device records (*.dat), kept between runs
//	├── error.log.txt          append-only error log
//	└── output/                wiped at the start of every run
//	    ├── pabot_results/     raw per-device results written by the runner
//	    ├── tmp/               relocated partial results and merged output
//	    ├── img/               screenshots
//	    └── final/             log, report and screenshots (standalone mode)
package workspace
