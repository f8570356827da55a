// Package errors defines the error values shared across the library.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNilFrame indicates that a nil frame was routed into a processor
	ErrNilFrame = errors.New("frame cannot be nil")

	// ErrNilProcessor indicates that a nil processor was supplied
	ErrNilProcessor = errors.New("processor cannot be nil")

	// ErrTaskAlreadyRunning indicates that Run was called on a running task
	ErrTaskAlreadyRunning = errors.New("task already running")

	// ErrTaskNotRunning indicates that the task has not been started
	ErrTaskNotRunning = errors.New("task not running")

	// ErrNotConnected indicates that the transport is not connected to NATS
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrInvalidSubject indicates that the provided subject is invalid
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrSubscriptionFailed indicates that a subscription could not be created
	ErrSubscriptionFailed = errors.New("subscription failed")

	// ErrPublishFailed indicates that a frame could not be published
	ErrPublishFailed = errors.New("publish failed")
)

// Error represents a structured library error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new library error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
