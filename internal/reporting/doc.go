// Package reporting publishes periodic device telemetry.
//
// A Loop wakes on a fixed interval and, while the session is connected,
// builds a properties Snapshot (identity, timestamp, uptime, free memory,
// report counter and any sampler fields) and publishes it on the device
// properties topic. Cycles that find the session disconnected are skipped
// silently; telemetry is best-effort and missed intervals are not queued.
//
// # Usage
//
//	loop, err := reporting.NewLoop(client, identity, cfg.Reporting, logger,
//	    reporting.WithSink(influx))
//	if err != nil {
//	    return err
//	}
//	go loop.Run(ctx)
//
// Samplers contribute extra telemetry fields; Sinks receive each published
// Snapshot, for example to mirror it to InfluxDB.
package reporting
