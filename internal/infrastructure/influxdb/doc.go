// Package influxdb records run metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written:
//   - suite_run: one point per suite (exit code, duration, collected artifacts)
//   - appium_server: automation server lifecycle changes per device
//   - pipeline_run: the summary of a finished run
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSuite(influxdb.SuiteSample{Suite: "Login", ExitCode: 0})
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Batch
// failures arrive asynchronously through SetOnError; connection errors are
// returned from Connect.
package influxdb
