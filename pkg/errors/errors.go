// Unified error handling for the clockception motion core
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// ErrConfiguration marks a degenerate numeric input (non-positive step
	// count or speed). The core clamps these and carries on.
	ErrConfiguration ErrorCode = "CONFIGURATION"

	// ErrCapacity marks an instruction queue that is already full.
	ErrCapacity ErrorCode = "CAPACITY"

	// ErrWatchdogTimeout marks an epoch that was force-finished.
	ErrWatchdogTimeout ErrorCode = "WATCHDOG_TIMEOUT"

	// ErrCancelled marks an epoch stopped through its context.
	ErrCancelled ErrorCode = "CANCELLED"

	// ErrHardwareInit marks a peripheral that could not be brought up.
	ErrHardwareInit ErrorCode = "HARDWARE_INIT"

	// ErrRuntime is a catch-all for recovered panics.
	ErrRuntime ErrorCode = "RUNTIME"
)

// CoreError is the error type shared by the motion packages
type CoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Axis is the axis id the error refers to, or -1
	Axis int

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *CoreError) Error() string {
	if e.Axis >= 0 {
		return fmt.Sprintf("[%s:axis %d] %s", e.Code, e.Axis, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CoreError) Unwrap() error {
	return e.Err
}

// SetAxis sets the axis the error refers to
func (e *CoreError) SetAxis(axis int) *CoreError {
	e.Axis = axis
	return e
}

// SetContext adds additional context
func (e *CoreError) SetContext(key string, value interface{}) *CoreError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new CoreError
func New(code ErrorCode, message string) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
		Axis:    -1,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
		Axis:    -1,
		Err:     err,
	}
}

// ConfigurationError reports a clamped input
func ConfigurationError(axis int, field string, value int) *CoreError {
	return New(ErrConfiguration, fmt.Sprintf("%s %d clamped to 1", field, value)).
		SetAxis(axis).
		SetContext(field, value)
}

// CapacityError reports an instruction that did not fit the queue
func CapacityError(axis int, capacity int) *CoreError {
	return New(ErrCapacity, fmt.Sprintf("instruction queue full (capacity %d)", capacity)).
		SetAxis(axis).
		SetContext("capacity", capacity)
}

// WatchdogTimeoutError reports an epoch that overran its time limit
func WatchdogTimeoutError(elapsedMs, limitMs uint64) *CoreError {
	return New(ErrWatchdogTimeout, fmt.Sprintf("epoch ran %d ms, limit %d ms; all axes forced finished", elapsedMs, limitMs)).
		SetContext("elapsed_ms", elapsedMs)
}

// CancelledError reports an epoch stopped by its caller
func CancelledError(err error) *CoreError {
	return Wrap(err, ErrCancelled, "epoch cancelled; all axes forced finished")
}

// HardwareInitError reports a peripheral that failed to start
func HardwareInitError(component string, err error) *CoreError {
	return Wrap(err, ErrHardwareInit, fmt.Sprintf("failed to initialize %s", component))
}

// RecoverPanic safely recovers from panic and converts to error.
// It must be called directly by a deferred function.
func RecoverPanic(r interface{}) *CoreError {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case runtime.Error:
		return Wrap(x, ErrRuntime, "panic")
	case error:
		return Wrap(x, ErrRuntime, "panic")
	case string:
		return New(ErrRuntime, "panic: "+x)
	default:
		return New(ErrRuntime, fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if ce, ok := err.(*CoreError); ok && ce.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsForcedStop reports whether an epoch ended early
func IsForcedStop(err error) bool {
	return Is(err, ErrWatchdogTimeout) || Is(err, ErrCancelled)
}

// CodeOf returns the code of the first CoreError in err's chain, or
// ErrRuntime when there is none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if ce, ok := err.(*CoreError); ok {
			return ce.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrRuntime
}
