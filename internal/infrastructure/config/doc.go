// Package config handles loading and validating fleetrunner configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Every setting has a working default, so a run without any file behaves
// like the classic launcher: appium, python -m pabot.pabot and rebot taken
// from PATH, no history database, no broker, no metrics.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//
// Usage:
//
//	path, err := config.Resolve(flagPath, testsDir)
//	if err != nil {
//	    return err
//	}
//	cfg, err := config.Load(path)
package config
