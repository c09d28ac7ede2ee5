package sync

import (
	"errors"
	"fmt"
)

// Class partitions service errors by what the caller can do about them.
type Class string

const (
	// ClassInvalidTransition marks control calls rejected by the state machine.
	ClassInvalidTransition Class = "InvalidTransition"
	// ClassConfiguration marks missing or unusable configuration.
	ClassConfiguration Class = "ConfigurationError"
	// ClassNotConfigured marks operations that need a running, configured service.
	ClassNotConfigured Class = "NotConfigured"
	// ClassAdapter marks failures talking to the source or destination.
	ClassAdapter Class = "AdapterError"
	// ClassPersistence marks failures writing queue or throttle state.
	ClassPersistence Class = "PersistenceError"
)

// Error is a classified service error. The class survives wrapping so the API
// layer can map errors to response codes without string matching.
type Error struct {
	Class   Class
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidTransitionError reports a control call the current phase forbids.
func NewInvalidTransitionError(format string, args ...any) *Error {
	return &Error{Class: ClassInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// NewConfigurationError reports missing or invalid configuration.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Class: ClassConfiguration, Message: message, Err: err}
}

// NewNotConfiguredError reports an operation attempted without the service
// being in a usable state.
func NewNotConfiguredError(message string) *Error {
	return &Error{Class: ClassNotConfigured, Message: message}
}

// NewAdapterError reports a source or destination failure.
func NewAdapterError(message string, err error) *Error {
	return &Error{Class: ClassAdapter, Message: message, Err: err}
}

// NewPersistenceError reports a queue or throttle persistence failure.
func NewPersistenceError(message string, err error) *Error {
	return &Error{Class: ClassPersistence, Message: message, Err: err}
}

// ClassOf returns the class of err, or the empty string when err carries none.
func ClassOf(err error) Class {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return ""
}
