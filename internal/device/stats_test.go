package device

import (
	"testing"
	"time"
)

func TestReadStats(t *testing.T) {
	stats := ReadStats()

	if stats.Uptime < 0 {
		t.Errorf("Uptime = %d, want >= 0", stats.Uptime)
	}
	if stats.FreeHeap == 0 {
		t.Error("FreeHeap = 0, want a non-zero gauge")
	}
}

func TestUptime_WholeSeconds(t *testing.T) {
	saved := processStart
	t.Cleanup(func() { processStart = saved })

	processStart = time.Now().Add(-90*time.Second - 400*time.Millisecond)
	if got := Uptime(); got != 90 {
		t.Errorf("Uptime() = %d, want 90", got)
	}
}
