package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversation package.
var (
	// ErrInvalidSessionState is returned when an operation is not valid in
	// the engine's current state, or its arguments cannot start a session.
	ErrInvalidSessionState = errors.New("conversation: invalid session state")

	// ErrUnsupportedFormat is returned by Export for unknown formats.
	ErrUnsupportedFormat = errors.New("conversation: unsupported export format")
)

// StateError reports the state an operation was attempted in.
type StateError struct {
	Op    string
	State State
	// Reason is optional detail.
	Reason string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("conversation: %s in state %s: %s", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("conversation: %s in state %s", e.Op, e.State)
}

// Unwrap lets errors.Is match ErrInvalidSessionState.
func (e *StateError) Unwrap() error {
	return ErrInvalidSessionState
}

// IsInvalidState reports whether err is a session state error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidSessionState)
}
