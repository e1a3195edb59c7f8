package door

import "errors"

// Domain-specific errors for door control.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCommandInFlight is returned when a new target is requested while a
	// previous command has not yet been confirmed or failed.
	ErrCommandInFlight = errors.New("door: command already in flight")

	// ErrInvalidTarget is returned when a requested target is not a terminal
	// state (Open or Closed).
	ErrInvalidTarget = errors.New("door: target must be open or closed")

	// ErrUnknownState is returned when an observed value cannot be parsed as
	// a door state.
	ErrUnknownState = errors.New("door: unknown state value")
)
