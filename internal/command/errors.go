package command

import "errors"

// Domain-specific errors for command routing.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedCommand is returned when the payload is not valid JSON.
	ErrMalformedCommand = errors.New("command: malformed JSON payload")

	// ErrMissingCommandField is returned when the payload has no string "command" field.
	ErrMissingCommandField = errors.New("command: missing or non-string command field")

	// ErrUnknownCommand is returned when no handler is registered for the command name.
	ErrUnknownCommand = errors.New("command: unknown command")

	// ErrRestartPending is returned when a restart is requested while one is already scheduled.
	ErrRestartPending = errors.New("command: restart already pending")

	// ErrNoRestartPending is returned by cancel_restart when nothing is scheduled.
	ErrNoRestartPending = errors.New("command: no restart pending")

	// ErrRestartRequested is the cancellation cause used when a scheduled
	// restart fires. The entry point re-executes the process on seeing it.
	ErrRestartRequested = errors.New("command: restart requested")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("command: handler panicked")
)
