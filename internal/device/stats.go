package device

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// processStart is captured when the package is initialised, which is close
// enough to process start for an uptime gauge with one-second resolution.
var processStart = time.Now()

// Stats is a point-in-time sample of the device runtime gauges.
type Stats struct {
	// Uptime is whole seconds since the process started.
	Uptime int64

	// FreeHeap is the memory available to the device in bytes.
	FreeHeap uint64
}

// ReadStats samples uptime and available memory.
func ReadStats() Stats {
	return Stats{
		Uptime:   Uptime(),
		FreeHeap: FreeMemory(),
	}
}

// Uptime returns whole seconds since the process started.
func Uptime() int64 {
	return int64(time.Since(processStart) / time.Second)
}

// FreeMemory returns the memory available for new allocations in bytes.
//
// The system's available memory is used where the platform reports it; if
// it cannot be read the Go runtime's idle, unreleased heap is returned so
// the gauge still moves.
func FreeMemory() uint64 {
	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		return vm.Available
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapIdle - ms.HeapReleased
}
