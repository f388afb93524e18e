package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-agent/internal/device"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-agent/internal/journal"
)

// Router dispatches commands arriving on the device command topic.
//
// Thread Safety:
//   - Handle may be called concurrently; Register may be called at any time.
type Router struct {
	session   Session
	logger    Logger
	journal   Journal
	restarter *Restarter
	stats     func() device.Stats
	now       func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// Option customises a Router.
type Option func(*Router)

// WithJournal records every routed command.
func WithJournal(j Journal) Option {
	return func(r *Router) { r.journal = j }
}

// WithRestarter enables the restart and cancel_restart built-ins.
func WithRestarter(rs *Restarter) Option {
	return func(r *Router) { r.restarter = rs }
}

// WithStats overrides the runtime gauge source used by get_status.
func WithStats(f func() device.Stats) Option {
	return func(r *Router) { r.stats = f }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter creates a Router with the built-in commands registered.
func NewRouter(session Session, logger Logger, opts ...Option) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	r := &Router{
		session:  session,
		logger:   logger,
		stats:    device.ReadStats,
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerBuiltins()
	return r
}

// Register adds or replaces the handler for name.
func (r *Router) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Commands returns the registered command names, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle routes one inbound message.
//
// Messages on any topic other than the device command topic are ignored.
// Malformed, command-less and unknown commands are rejected with
// ErrMalformedCommand, ErrMissingCommandField or ErrUnknownCommand and
// nothing is published. A handler error is returned after the reply (if
// any) has been sent.
func (r *Router) Handle(ctx context.Context, topic string, payload []byte) error {
	if !r.session.Topics().IsCommand(topic) {
		return nil
	}

	cmd, err := decode(payload)
	cmd.ReceivedAt = r.now()
	if err != nil {
		r.record(ctx, cmd, outcomeFor(err), err.Error())
		return err
	}

	h := r.lookup(cmd.Name)
	if h == nil {
		err := fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
		r.record(ctx, cmd, journal.OutcomeUnknown, err.Error())
		return err
	}

	r.logger.Info("command received", "command", cmd.Name, "trace_id", cmd.TraceID)

	message, herr := r.run(ctx, h, cmd)
	if cmd.ID != "" {
		r.reply(cmd, message, herr)
	}

	if herr != nil {
		r.record(ctx, cmd, journal.OutcomeFailed, herr.Error())
		return fmt.Errorf("command %s: %w", cmd.Name, herr)
	}
	r.record(ctx, cmd, journal.OutcomeOK, message)
	return nil
}

// Run handles messages from in until it is closed or ctx is cancelled.
// Routing errors are logged; they never stop the loop.
func (r *Router) Run(ctx context.Context, in <-chan mqtt.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, msg.Topic, msg.Payload); err != nil {
				r.logError(msg.Topic, err)
			}
		}
	}
}

func (r *Router) logError(topic string, err error) {
	switch {
	case errors.Is(err, ErrMalformedCommand), errors.Is(err, ErrMissingCommandField):
		r.logger.Error("rejected command", "topic", topic, "error", err)
	case errors.Is(err, ErrUnknownCommand):
		r.logger.Warn("unknown command", "topic", topic, "error", err)
	default:
		r.logger.Error("command failed", "topic", topic, "error", err)
	}
}

func (r *Router) lookup(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// run invokes h, converting a panic into ErrHandlerPanic.
func (r *Router) run(ctx context.Context, h Handler, cmd Command) (message string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command handler panic recovered", "command", cmd.Name, "panic", rec)
			message, err = "", fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return h.Handle(ctx, cmd)
}

func (r *Router) reply(cmd Command, message string, herr error) {
	result := ResultOK
	if herr != nil {
		result, message = ResultFailed, herr.Error()
	}
	if _, err := r.session.ReplyCommand(cmd.ID, result, message); err != nil {
		r.logger.Warn("sending command reply", "command", cmd.Name, "command_id", cmd.ID, "error", err)
	}
}

func (r *Router) record(ctx context.Context, cmd Command, outcome journal.Outcome, detail string) {
	if r.journal == nil {
		return
	}
	entry := &journal.Entry{
		CommandID:  cmd.ID,
		TraceID:    cmd.TraceID,
		Command:    cmd.Name,
		Params:     cmd.Params,
		Outcome:    outcome,
		Detail:     detail,
		ReceivedAt: cmd.ReceivedAt,
	}
	if err := r.journal.Record(ctx, entry); err != nil {
		r.logger.Warn("journaling command", "command", cmd.Name, "error", err)
	}
}

func outcomeFor(err error) journal.Outcome {
	if errors.Is(err, ErrMalformedCommand) {
		return journal.OutcomeMalformed
	}
	return journal.OutcomeMissingCommand
}

// decode parses a command payload. The returned Command always has a TraceID,
// even on error, so rejections can be journaled.
func decode(payload []byte) (Command, error) {
	cmd := Command{TraceID: uuid.NewString()}

	if !json.Valid(payload) {
		return cmd, ErrMalformedCommand
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return cmd, fmt.Errorf("%w: payload is not a JSON object", ErrMissingCommandField)
	}

	if raw, ok := fields["command_id"]; ok {
		var id string
		if json.Unmarshal(raw, &id) == nil && id != "" {
			cmd.ID = id
			cmd.TraceID = id
		}
	}
	if raw, ok := fields["params"]; ok {
		cmd.Params = raw
	}

	raw, ok := fields["command"]
	if !ok {
		return cmd, ErrMissingCommandField
	}
	if err := json.Unmarshal(raw, &cmd.Name); err != nil || cmd.Name == "" {
		return cmd, ErrMissingCommandField
	}

	return cmd, nil
}
