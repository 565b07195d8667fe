// Package cli implements the fleetrunner command line.
//
// Commands:
//   - run: drive a test run across the fleet
//   - devices: list the fleet without starting anything
//   - history: list recent runs from the run history database
//
// Command errors map to exit statuses through ExitCode.
package cli
