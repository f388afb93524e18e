// Package influxdb mirrors device telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. A connected Client
// is a reporting.Sink: every properties report published over MQTT can also
// be written as a "device_report" point for local dashboards and history.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	loop, err := reporting.NewLoop(session, identity, cfg.Reporting, logger,
//	    reporting.WithSink(client))
//
// # Error Handling
//
// Writes are non-blocking and batched; failures are delivered to the
// SetOnError callback wrapped in ErrWriteFailed. Connection and health
// check errors are returned directly.
package influxdb
