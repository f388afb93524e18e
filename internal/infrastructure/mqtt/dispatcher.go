package mqtt

import (
	"context"
	"errors"
)

// inboundBufferSize is the capacity of the inbound message channel.
const inboundBufferSize = 16

// Message is an inbound application message.
type Message struct {
	Topic   string
	Payload []byte
}

// Dispatcher turns transport events into session behaviour.
//
// On every Connected event it marks the session connected, subscribes the
// command topic (QoS 1) and then publishes the online status, in that order.
// Data events are forwarded unfiltered to Inbound; the consumer decides which
// topics it cares about.
type Dispatcher struct {
	client  *Client
	logger  Logger
	inbound chan Message
}

// NewDispatcher creates a Dispatcher for client. A nil logger uses the
// client's logger.
func NewDispatcher(client *Client, logger Logger) *Dispatcher {
	if logger == nil {
		logger = client.logger
	}
	return &Dispatcher{
		client:  client,
		logger:  logger,
		inbound: make(chan Message, inboundBufferSize),
	}
}

// Inbound returns the channel of received messages. It is closed when Run
// returns.
func (d *Dispatcher) Inbound() <-chan Message {
	return d.inbound
}

// Run consumes transport events until ctx is cancelled or the client is
// stopped. It always returns nil; transport failures are logged, not fatal.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.inbound)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.client.Done():
			return nil
		case ev := <-d.client.Events():
			d.handle(ctx, ev)
		}
	}
}

// handle applies one event.
func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventConnected:
		d.onConnected()

	case EventDisconnected:
		d.client.markDisconnected()
		if ev.Err != nil {
			d.logger.Warn("mqtt disconnected", "error", ev.Err)
		} else {
			d.logger.Info("mqtt disconnected")
		}

	case EventSubscribed, EventUnsubscribed, EventPublished:
		d.logger.Debug("mqtt acknowledged", "event", ev.Type.String(), "msg_id", ev.MessageID)

	case EventData:
		select {
		case d.inbound <- Message{Topic: ev.Topic, Payload: ev.Payload}:
		case <-ctx.Done():
		}

	case EventError:
		d.onError(ev)

	default:
		d.logger.Debug("mqtt event ignored", "event", ev.Type.String())
	}
}

// onConnected performs the per-connection setup. It runs on every connect,
// so a reconnect restores the command subscription.
func (d *Dispatcher) onConnected() {
	if !d.client.markConnected() {
		return
	}

	topics := d.client.Topics()
	d.logger.Info("mqtt connected", "command_topic", topics.Command)

	if _, err := d.client.Subscribe(topics.Command, QoSAtLeastOnce); err != nil {
		d.logger.Error("subscribing to command topic", "topic", topics.Command, "error", err)
	}
	if _, err := d.client.PublishOnline(); err != nil {
		d.logger.Error("publishing online status", "error", err)
	}
}

// onError classifies and logs an asynchronous transport failure.
func (d *Dispatcher) onError(ev Event) {
	if ev.Err == nil {
		d.logger.Warn("mqtt error event without cause", "msg_id", ev.MessageID)
		return
	}

	te := classifyError(ev.Err)
	args := []any{"kind", te.Kind, "error", te.Err}
	if ev.MessageID != 0 {
		args = append(args, "msg_id", ev.MessageID)
	}
	if te.Errno != 0 {
		args = append(args, "errno", int(te.Errno))
	}

	var refused *protocolError
	if errors.As(te.Err, &refused) {
		args = append(args, "reason_code", refused.Reason)
	}

	d.logger.Error("mqtt transport error", args...)
}
