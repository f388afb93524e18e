package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/device"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/mqtt"
)

// Session is the part of the MQTT session the loop needs.
// *mqtt.Client satisfies it.
type Session interface {
	IsConnected() bool
	ReportProperties(payload []byte) (mqtt.MessageID, error)
}

// Sampler contributes telemetry fields to each report.
type Sampler interface {
	Sample(ctx context.Context) (map[string]any, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (map[string]any, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context) (map[string]any, error) { return f(ctx) }

// Sink receives every snapshot that was handed to the session.
type Sink interface {
	WriteReport(ctx context.Context, snap Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap Snapshot) error

// WriteReport calls f.
func (f SinkFunc) WriteReport(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Loop periodically publishes device properties.
//
// Thread Safety:
//   - Run must be called once. Cycle and ReportCount are safe to call
//     concurrently with Run.
type Loop struct {
	session  Session
	identity device.Identity
	interval time.Duration
	logger   Logger
	stats    func() device.Stats
	now      func() time.Time
	samplers []Sampler
	sinks    []Sink

	// count is the report_count of the next attempt.
	count atomic.Uint64
}

// Option customises a Loop.
type Option func(*Loop)

// WithSampler adds a telemetry source.
func WithSampler(s Sampler) Option {
	return func(l *Loop) { l.samplers = append(l.samplers, s) }
}

// WithSink adds a destination for published snapshots.
func WithSink(s Sink) Option {
	return func(l *Loop) { l.sinks = append(l.sinks, s) }
}

// WithStats overrides the runtime gauge source.
func WithStats(f func() device.Stats) Option {
	return func(l *Loop) { l.stats = f }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// NewLoop creates a reporting loop for the device.
//
// The interval comes from cfg.Interval (seconds). cfg.Enabled is the
// caller's concern; NewLoop does not look at it.
func NewLoop(session Session, identity device.Identity, cfg config.ReportingConfig, logger Logger, opts ...Option) (*Loop, error) {
	if session == nil {
		return nil, ErrNoSession
	}
	interval := time.Duration(cfg.Interval) * time.Second
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInterval, cfg.Interval)
	}
	if logger == nil {
		logger = noopLogger{}
	}

	l := &Loop{
		session:  session,
		identity: identity,
		interval: interval,
		logger:   logger,
		stats:    device.ReadStats,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Interval returns the time between cycles.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// ReportCount returns how many publishes have been attempted.
func (l *Loop) ReportCount() uint64 {
	return l.count.Load()
}

// Run executes a cycle every interval until ctx is cancelled.
// It always returns nil; publish failures are logged.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("reporting loop started", "interval", l.interval)
	defer l.logger.Info("reporting loop stopped", "reports", l.ReportCount())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle runs one reporting cycle and reports whether a snapshot was
// published. A disconnected session skips the cycle without logging.
func (l *Loop) Cycle(ctx context.Context) bool {
	if !l.session.IsConnected() {
		return false
	}

	// The counter advances on every attempt, published or not.
	snap := l.snapshot(ctx, l.count.Add(1)-1)
	payload, err := json.Marshal(snap)
	if err != nil {
		l.logger.Error("encoding properties report", "error", err)
		return false
	}

	id, err := l.session.ReportProperties(payload)
	if err != nil {
		l.logger.Warn("publishing properties report", "report_count", snap.ReportCount, "error", err)
		return false
	}
	l.logger.Debug("properties reported", "report_count", snap.ReportCount, "message_id", id)

	for _, sink := range l.sinks {
		if err := sink.WriteReport(ctx, snap); err != nil {
			l.logger.Warn("writing report to sink", "report_count", snap.ReportCount, "error", err)
		}
	}
	return true
}

func (l *Loop) snapshot(ctx context.Context, count uint64) Snapshot {
	stats := l.stats()
	snap := Snapshot{
		DeviceID:    l.identity.ID,
		DeviceName:  l.identity.Name,
		DeviceType:  l.identity.Type,
		Timestamp:   l.now().UnixMilli(),
		Uptime:      stats.Uptime,
		FreeHeap:    stats.FreeHeap,
		ReportCount: count,
	}

	for _, s := range l.samplers {
		fields, err := s.Sample(ctx)
		if err != nil {
			l.logger.Warn("sampling telemetry", "error", err)
			continue
		}
		if snap.Fields == nil && len(fields) > 0 {
			snap.Fields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			snap.Fields[k] = v
		}
	}
	return snap
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
