// Package device describes the device this agent runs on.
//
// It holds the immutable Identity loaded from configuration (id, name, type)
// and samples the runtime gauges reported to the backend (process uptime and
// available memory).
//
// The device ID is embedded in every MQTT topic and every outbound payload,
// so it is validated once at startup and never changes for the lifetime of
// the process.
//
// # Usage
//
//	id := device.Identity{ID: "esp32-001", Name: "Hall sensor", Type: "sensor"}
//	if err := id.Validate(); err != nil {
//	    return err
//	}
//
//	stats := device.ReadStats()
//	log.Info("runtime", "uptime", stats.Uptime, "free_heap", stats.FreeHeap)
package device
