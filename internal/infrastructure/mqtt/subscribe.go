package mqtt

import "fmt"

// Subscribe requests delivery of messages matching filter.
//
// Matching messages arrive as EventData on the event stream and are
// forwarded by the Dispatcher; there are no per-subscription callbacks.
// The broker does not remember subscriptions across sessions, so the
// Dispatcher re-subscribes the command topic on every connect.
//
// Parameters:
//   - filter: Topic filter, may include + and # wildcards
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - MessageID: Transport-assigned identifier matched by EventSubscribed
//   - error: ErrNotConnected, a validation error, or ErrSubscribeFailed
func (c *Client) Subscribe(filter string, qos byte) (MessageID, error) {
	if err := validateFilter(filter); err != nil {
		return 0, err
	}
	if qos > maxQoS {
		return 0, ErrInvalidQoS
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.transport == nil || !c.connected {
		return 0, ErrNotConnected
	}

	id, err := c.transport.Subscribe(filter, qos)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return id, nil
}

// Unsubscribe removes a subscription.
//
// Unlike Subscribe it is accepted while disconnected, as long as the
// client has not been stopped; the transport decides what to do with it.
func (c *Client) Unsubscribe(filter string) (MessageID, error) {
	if err := validateFilter(filter); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.transport == nil {
		return 0, ErrNotConnected
	}

	id, err := c.transport.Unsubscribe(filter)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return id, nil
}
