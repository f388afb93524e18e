package mqtt

import (
	"encoding/json"
	"fmt"
)

// Publish sends a message to the specified MQTT topic.
//
// The payload is copied, so the caller may reuse its buffer. Publish does
// not wait for the broker: the returned MessageID is matched by a later
// EventPublished (or EventError) on the event stream.
//
// Parameters:
//   - topic: The topic to publish to (no wildcards)
//   - payload: The message payload, at most MaxPayloadSize bytes
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - MessageID: Transport-assigned identifier
//   - error: ErrNotConnected, a validation error, or ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) (MessageID, error) {
	if err := validatePublishTopic(topic); err != nil {
		return 0, err
	}
	if qos > maxQoS {
		return 0, ErrInvalidQoS
	}
	if len(payload) > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.transport == nil || !c.connected {
		return 0, ErrNotConnected
	}

	return c.publishLocked(c.transport, topic, payload, qos, retained)
}

// publishLocked forwards to the transport. The caller holds c.mu.
func (c *Client) publishLocked(t Transport, topic string, payload []byte, qos byte, retained bool) (MessageID, error) {
	owned := make([]byte, len(payload))
	copy(owned, payload)

	id, err := t.Publish(topic, qos, retained, owned)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return id, nil
}

// ReportStatus publishes a status payload to the device status topic
// (QoS 1, not retained).
func (c *Client) ReportStatus(payload []byte) (MessageID, error) {
	return c.Publish(c.topics.Status, payload, QoSAtLeastOnce, false)
}

// ReportProperties publishes a telemetry payload to the device properties
// topic (QoS 1, not retained).
func (c *Client) ReportProperties(payload []byte) (MessageID, error) {
	return c.Publish(c.topics.Properties, payload, QoSAtLeastOnce, false)
}

// ReplyCommand publishes a command result to the device reply topic.
//
// Result 0 means success. The message is JSON-escaped.
func (c *Client) ReplyCommand(commandID string, result int, message string) (MessageID, error) {
	payload, err := json.Marshal(ReplyEnvelope{
		CommandID: commandID,
		Result:    result,
		Message:   message,
		Timestamp: c.now().UnixMilli(),
	})
	if err != nil {
		return 0, fmt.Errorf("encoding reply: %w", err)
	}
	return c.Publish(c.topics.Reply, payload, QoSAtLeastOnce, false)
}

// PublishOnline publishes the "online" status envelope.
func (c *Client) PublishOnline() (MessageID, error) {
	payload, err := c.statusPayload(StatusOnline)
	if err != nil {
		return 0, err
	}
	return c.ReportStatus(payload)
}

// publishStatus writes a status envelope straight to t. The caller holds c.mu.
func (c *Client) publishStatus(t Transport, status string, retained bool) (MessageID, error) {
	payload, err := c.statusPayload(status)
	if err != nil {
		return 0, err
	}
	return c.publishLocked(t, c.topics.Status, payload, QoSAtLeastOnce, retained)
}

func (c *Client) statusPayload(status string) ([]byte, error) {
	payload, err := json.Marshal(StatusEnvelope{
		DeviceID:  c.identity.ID,
		Status:    status,
		Timestamp: c.now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding status: %w", err)
	}
	return payload, nil
}
