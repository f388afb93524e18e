package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/device"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-agent/internal/journal"
)

// Result codes carried in reply envelopes.
const (
	ResultOK     = 0
	ResultFailed = 1
)

// Command is a decoded inbound command.
type Command struct {
	// Name is the "command" field.
	Name string

	// ID is the optional "command_id" used to correlate the reply.
	ID string

	// TraceID is ID when present, otherwise a generated UUID. It is used in
	// logs and the journal.
	TraceID string

	// Params is the raw "params" value, or nil when absent.
	Params json.RawMessage

	ReceivedAt time.Time
}

// Handler executes one command.
//
// The returned message is sent in the reply on success. A returned error
// is sent as the reply message with a failure result.
type Handler interface {
	Handle(ctx context.Context, cmd Command) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd Command) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (string, error) {
	return f(ctx, cmd)
}

// Session is the part of the MQTT session the router needs.
// *mqtt.Client satisfies it.
type Session interface {
	Topics() mqtt.TopicSet
	Identity() device.Identity
	ReportStatus(payload []byte) (mqtt.MessageID, error)
	ReplyCommand(commandID string, result int, message string) (mqtt.MessageID, error)
}

// Journal records routed commands. *journal.SQLiteRepository satisfies it.
type Journal interface {
	Record(ctx context.Context, entry *journal.Entry) error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DecodeParams unmarshals the command params into v.
// Absent params leave v untouched.
func (c Command) DecodeParams(v any) error {
	if len(c.Params) == 0 || string(c.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(c.Params, v); err != nil {
		return fmt.Errorf("decoding params for %s: %w", c.Name, err)
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
