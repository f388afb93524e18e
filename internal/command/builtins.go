package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/mqtt"
)

// Built-in command names.
const (
	CommandGetStatus     = "get_status"
	CommandRestart       = "restart"
	CommandCancelRestart = "cancel_restart"
	CommandTest          = "test"
)

// statusSnapshot is the get_status payload.
type statusSnapshot struct {
	DeviceID  string `json:"device_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Uptime    int64  `json:"uptime"`
	FreeHeap  uint64 `json:"free_heap"`
}

func (r *Router) registerBuiltins() {
	r.Register(CommandGetStatus, HandlerFunc(r.getStatus))
	r.Register(CommandTest, HandlerFunc(r.test))
	if r.restarter != nil {
		r.Register(CommandRestart, HandlerFunc(r.restart))
		r.Register(CommandCancelRestart, HandlerFunc(r.cancelRestart))
	}
}

// getStatus publishes one status snapshot.
func (r *Router) getStatus(_ context.Context, _ Command) (string, error) {
	stats := r.stats()
	payload, err := json.Marshal(statusSnapshot{
		DeviceID:  r.session.Identity().ID,
		Status:    mqtt.StatusOnline,
		Timestamp: r.now().UnixMilli(),
		Uptime:    stats.Uptime,
		FreeHeap:  stats.FreeHeap,
	})
	if err != nil {
		return "", fmt.Errorf("encoding status: %w", err)
	}

	if _, err := r.session.ReportStatus(payload); err != nil {
		return "", fmt.Errorf("reporting status: %w", err)
	}
	return "status reported", nil
}

// restart arms the delayed restart. The reply is sent before it fires.
func (r *Router) restart(_ context.Context, _ Command) (string, error) {
	delay, err := r.restarter.Schedule()
	if err != nil {
		return "", err
	}
	r.logger.Warn("restart scheduled", "delay", delay)
	return fmt.Sprintf("restarting in %s", delay), nil
}

func (r *Router) cancelRestart(_ context.Context, _ Command) (string, error) {
	if !r.restarter.Cancel() {
		return "", ErrNoRestartPending
	}
	r.logger.Info("restart cancelled")
	return "restart cancelled", nil
}

// test acknowledges without side effects.
func (r *Router) test(_ context.Context, cmd Command) (string, error) {
	r.logger.Info("test command received", "trace_id", cmd.TraceID)
	return "ok", nil
}
