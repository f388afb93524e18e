package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-agent/internal/reporting"
)

// MeasurementDeviceReport is the measurement written for each properties
// report.
const MeasurementDeviceReport = "device_report"

// WriteReport queues a properties report as one point. It satisfies
// reporting.Sink.
//
// The device ID and type become tags; the gauges and any scalar sampler
// fields become fields. Non-scalar sampler values are skipped.
func (c *Client) WriteReport(_ context.Context, snap reporting.Snapshot) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(reportPoint(snap))
	return nil
}

func reportPoint(snap reporting.Snapshot) *write.Point {
	tags := map[string]string{
		"device_id": snap.DeviceID,
	}
	if snap.DeviceType != "" {
		tags["device_type"] = snap.DeviceType
	}

	fields := make(map[string]any, len(snap.Fields)+3)
	for k, v := range snap.Fields {
		if isScalar(v) {
			fields[k] = v
		}
	}
	fields[reporting.FieldUptime] = snap.Uptime
	fields[reporting.FieldFreeHeap] = snap.FreeHeap
	fields[reporting.FieldReportCount] = snap.ReportCount

	return write.NewPoint(MeasurementDeviceReport, tags, fields, time.UnixMilli(snap.Timestamp))
}

func isScalar(v any) bool {
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
