// Package report merges the staged results of a run and finalises its
// presentation artifacts.
//
// Merging happens in two passes of the result merger (rebot), both run in
// the staging directory:
//
//	rebot --name "Pixel 7" -o output.<udid>.xml --log NONE --report NONE \
//	    output0.Login_Flow.xml output0.Smoke.xml
//	rebot --name Default-Test -o output-final.xml --report report.html \
//	    --log log.html output.<udid0>.xml output.<udid1>.xml
//
// Finalize then moves log.html, report.html and the screenshots into
// output/final, unless the run is in CI mode.
package report
