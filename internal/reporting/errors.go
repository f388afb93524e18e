package reporting

import "errors"

var (
	// ErrInvalidInterval indicates a non-positive reporting interval.
	ErrInvalidInterval = errors.New("reporting: interval must be positive")

	// ErrNoSession indicates the loop was created without a session.
	ErrNoSession = errors.New("reporting: session is required")
)
