package device

import "errors"

// Domain-specific errors for device identity.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmptyID is returned when the device ID is missing.
	ErrEmptyID = errors.New("device: id is required")

	// ErrInvalidID is returned when the device ID is not valid UTF-8 or
	// contains characters that would make its MQTT topics ambiguous (topic
	// separators or wildcards).
	ErrInvalidID = errors.New("device: invalid id")

	// ErrIDTooLong is returned when the device ID exceeds MaxIDLength.
	ErrIDTooLong = errors.New("device: id too long")
)
