// Package logging provides structured logging for fleetrunner.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - Text output for operators (default) or JSON for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Append-only error log per workspace, mirrored to the console in verbose mode
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	errLog, err := logging.OpenErrorLog(rc.ErrorLogPath)
//	if err != nil {
//	    return err
//	}
//	defer errLog.Close()
//	logger := logging.NewRun(cfg.Logging, version, errLog, rc.Verbose)
//	logger.Error("relocating artifact", "kind", "io", "error", err)
package logging
