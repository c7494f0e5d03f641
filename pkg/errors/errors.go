// Package errors provides structured error handling for the Atlas server.
// It supports error wrapping, context fields, and stack traces while
// maintaining compatibility with the standard errors package.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types for common scenarios
var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternalError indicates an internal system error
	ErrInternalError = errors.New("internal error")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrUnauthenticated indicates missing or invalid credentials
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrResourceExhausted indicates a resource limit was reached
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Domain-specific error types
var (
	// ErrCallNotFound indicates a call record was not found
	ErrCallNotFound = errors.New("call not found")

	// ErrInvalidWebhook indicates a malformed webhook payload
	ErrInvalidWebhook = errors.New("invalid webhook payload")

	// ErrInvalidPhoneNumber indicates a phone number failed validation
	ErrInvalidPhoneNumber = errors.New("invalid phone number")

	// ErrCallPlacementFailed indicates the telephony provider rejected a call
	ErrCallPlacementFailed = errors.New("call placement failed")

	// ErrDetectionNotFound indicates no detection result exists for a call
	ErrDetectionNotFound = errors.New("detection result not found")

	// ErrNoTranscript indicates a call has no transcript available
	ErrNoTranscript = errors.New("no transcript available")

	// ErrRetryExhausted indicates a call has used all retry attempts
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrProviderFailure indicates a telephony provider API failure
	ErrProviderFailure = errors.New("telephony provider failure")
)

// Error represents a structured error with context
type Error struct {
	// original is the wrapped error
	original error

	// message is the error description
	message string

	// fields contains additional context
	fields map[string]interface{}

	// stackPC stores program counters for the stack trace
	stackPC []uintptr

	// file and line record where the error was created
	file string
	line int

	// Code is an optional machine-readable error code
	Code string
}

// New creates a new structured error
func New(message string) *Error {
	return newError(nil, message, nil)
}

// Newf creates a new structured error with formatting
func Newf(format string, args ...interface{}) *Error {
	return newError(nil, fmt.Sprintf(format, args...), nil)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return newError(err, message, nil)
}

// Wrapf wraps an existing error with formatted context
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(err, fmt.Sprintf(format, args...), nil)
}

// WrapWithFields wraps an error with additional fields
func WrapWithFields(err error, message string, fields map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(err, message, fields)
}

// newError creates a structured error with stack information
func newError(original error, message string, fields map[string]interface{}) *Error {
	// Capture stack trace
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc)

	// Get caller information
	_, file, line, _ := runtime.Caller(2)

	// Trim the file path for readability
	if idx := strings.LastIndex(file, "/pkg/"); idx >= 0 {
		file = file[idx+1:]
	}

	if fields == nil {
		fields = make(map[string]interface{})
	}

	return &Error{
		original: original,
		message:  message,
		fields:   fields,
		stackPC:  pc[:n],
		file:     file,
		line:     line,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.original != nil {
		return fmt.Sprintf("%s: %v", e.message, e.original)
	}
	return e.message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.original
}

// WithField adds a context field to the error
func (e *Error) WithField(key string, value interface{}) *Error {
	e.fields[key] = value
	return e
}

// WithFields adds multiple context fields to the error
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithCode sets a machine-readable error code
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// Fields returns the error's context fields
func (e *Error) Fields() map[string]interface{} {
	return e.fields
}

// Location returns where the error was created
func (e *Error) Location() string {
	return fmt.Sprintf("%s:%d", e.file, e.line)
}

// AsJSON returns a map suitable for JSON serialization
func (e *Error) AsJSON() map[string]interface{} {
	result := map[string]interface{}{
		"error":    e.message,
		"location": e.Location(),
	}

	if e.original != nil {
		result["cause"] = e.original.Error()
	}

	if e.Code != "" {
		result["code"] = e.Code
	}

	if len(e.fields) > 0 {
		result["fields"] = e.fields
	}

	return result
}

// Is reports whether the error matches the target
func (e *Error) Is(target error) bool {
	if e.original == nil {
		return false
	}
	return errors.Is(e.original, target)
}

// NewNotFound creates a not found error for a resource
func NewNotFound(resource string) *Error {
	return Wrap(ErrNotFound, fmt.Sprintf("%s not found", resource)).WithCode("NOT_FOUND")
}

// NewInvalidInput creates an invalid input error
func NewInvalidInput(message string) *Error {
	return Wrap(ErrInvalidInput, message).WithCode("INVALID_INPUT")
}

// NewCallNotFound creates a call not found error with the call SID attached
func NewCallNotFound(callSID string) *Error {
	return Wrap(ErrCallNotFound, "call not found").
		WithField("call_sid", callSID).
		WithCode("CALL_NOT_FOUND")
}

// NewInvalidWebhook creates an invalid webhook error
func NewInvalidWebhook(message string) *Error {
	return Wrap(ErrInvalidWebhook, message).WithCode("INVALID_WEBHOOK")
}

// NewProviderFailure creates a telephony provider failure error
func NewProviderFailure(message string) *Error {
	return Wrap(ErrProviderFailure, message).WithCode("PROVIDER_FAILURE")
}

// Is delegates to the standard errors package
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to the standard errors package
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap delegates to the standard errors package
func Unwrap(err error) error {
	return errors.Unwrap(err)
}
