package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxIDLength bounds the device ID so derived topics stay well inside the
// broker's topic length limits.
const MaxIDLength = 64

// reservedIDChars are characters with meaning in MQTT topic names.
const reservedIDChars = "/+#\x00"

// Identity is the immutable description of this device.
type Identity struct {
	// ID is unique per device. It is the MQTT client identifier and appears
	// in every topic and every outbound payload.
	ID string

	// Name is a human-readable label.
	Name string

	// Type is a free-form classification (e.g. "sensor").
	Type string
}

// Validate checks that the identity can be used to derive topics.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return ErrEmptyID
	}
	if !utf8.ValidString(i.ID) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidID, i.ID)
	}
	if utf8.RuneCountInString(i.ID) > MaxIDLength {
		return fmt.Errorf("%w: %d characters, maximum %d", ErrIDTooLong, utf8.RuneCountInString(i.ID), MaxIDLength)
	}
	if strings.ContainsAny(i.ID, reservedIDChars) {
		return fmt.Errorf("%w: %q", ErrInvalidID, i.ID)
	}
	return nil
}

// String returns the ID, which is how the device is referred to in logs.
func (i Identity) String() string {
	return i.ID
}
