// Package history stores past runs in the SQLite database.
//
// Every run gets a row in runs that follows its phase, one suite_runs row
// per executed suite and one server_events row per automation server
// lifecycle change. The history command lists the stored runs.
package history
