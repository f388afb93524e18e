package reporting

import (
	"encoding/json"
)

// Properties envelope field names.
const (
	FieldDeviceID    = "device_id"
	FieldDeviceName  = "device_name"
	FieldDeviceType  = "device_type"
	FieldTimestamp   = "timestamp"
	FieldUptime      = "uptime"
	FieldFreeHeap    = "free_heap"
	FieldReportCount = "report_count"
)

// Snapshot is one properties report.
//
// Fields holds sampler telemetry. On the wire the fixed fields and Fields
// share one flat JSON object; a sampler field with a fixed name is dropped.
type Snapshot struct {
	DeviceID    string
	DeviceName  string
	DeviceType  string
	Timestamp   int64 // Unix milliseconds
	Uptime      int64 // seconds
	FreeHeap    uint64
	ReportCount uint64
	Fields      map[string]any
}

// MarshalJSON flattens the snapshot into a single object.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+7)
	for k, v := range s.Fields {
		out[k] = v
	}

	out[FieldDeviceID] = s.DeviceID
	if s.DeviceName != "" {
		out[FieldDeviceName] = s.DeviceName
	} else {
		delete(out, FieldDeviceName)
	}
	if s.DeviceType != "" {
		out[FieldDeviceType] = s.DeviceType
	} else {
		delete(out, FieldDeviceType)
	}
	out[FieldTimestamp] = s.Timestamp
	out[FieldUptime] = s.Uptime
	out[FieldFreeHeap] = s.FreeHeap
	out[FieldReportCount] = s.ReportCount

	return json.Marshal(out)
}
