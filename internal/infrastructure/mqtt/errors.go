package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConfig is returned by New when the session cannot be configured.
	ErrConfig = errors.New("mqtt: invalid session configuration")

	// ErrStart is returned when the transport cannot be started.
	ErrStart = errors.New("mqtt: start failed")

	// ErrStop is returned when the transport reports a failure while stopping.
	ErrStop = errors.New("mqtt: stop failed")

	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed is returned when the transport rejects a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the transport rejects a subscribe.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when the transport rejects an unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrInvalidDeviceID is returned when topics cannot be derived from a device ID.
	ErrInvalidDeviceID = errors.New("mqtt: invalid device id")

	// ErrTransport marks failures reported asynchronously by the transport.
	// These are logged by the Dispatcher and never returned to callers.
	ErrTransport = errors.New("mqtt: transport error")

	// ErrQueueFull is returned when the MQTT v5 transport cannot accept more
	// in-flight operations.
	ErrQueueFull = errors.New("mqtt: operation queue full")
)
