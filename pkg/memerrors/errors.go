// Package memerrors provides structured error handling for memgate with rich
// context, stack traces, and error categorization. Every failure surfaced by
// the inventory, connector instances, and the access facade is an *Error whose
// Type names one of the kinds below, so callers can branch on the kind without
// string matching.
//
// # Basic Usage
//
//	// Create a new error
//	err := memerrors.New(memerrors.ErrorTypeNotFound, "connector not found").
//	    WithDetail("name", "kvm")
//
//	// Wrap a backend failure
//	if err := backendRead(); err != nil {
//	    return memerrors.Wrap(err, memerrors.ErrorTypeIO, "physical read failed").
//	        WithDetail("address", addr)
//	}
//
//	// Branch on the kind
//	if memerrors.IsType(err, memerrors.ErrorTypeReleased) {
//	    // instance was already released
//	}
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Finish adding
// details before sharing an error across goroutines.
package memerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeNotFound is a connector name lookup miss
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConnectorInitFailed is a factory failure during Create
	ErrorTypeConnectorInitFailed ErrorType = "connector_init_failed"
	// ErrorTypeIO is a backend transfer failure
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeOutOfBounds is an access beyond the backend's address space
	ErrorTypeOutOfBounds ErrorType = "out_of_bounds"
	// ErrorTypeUnsupported is an operation the backend does not provide
	ErrorTypeUnsupported ErrorType = "unsupported"
	// ErrorTypeShortRead is a read that returned fewer bytes than requested
	ErrorTypeShortRead ErrorType = "short_read"
	// ErrorTypeReleased is any use of a released instance or destroyed inventory
	ErrorTypeReleased ErrorType = "released"
	// ErrorTypeInventoryBusy is a destroy attempt while instances are alive
	// under the strict lifetime policy
	ErrorTypeInventoryBusy ErrorType = "inventory_busy"
	// ErrorTypePluginLoadFailed is a plugin skipped during a scan
	ErrorTypePluginLoadFailed ErrorType = "plugin_load_failed"
	// ErrorTypeValidation is a malformed request rejected before dispatch
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig is a configuration error
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal is a broken invariant inside memgate or a backend
	ErrorTypeInternal ErrorType = "internal"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning the error type, message,
// and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same type with no message,
// which lets sentinel kinds such as ErrReleased work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Type == e.Type
}

// WithDetail adds a key-value detail to the error. This method can be chained.
//
// Example:
//
//	err := memerrors.New(memerrors.ErrorTypeOutOfBounds, "read past end").
//	    WithDetail("address", "0x1000").
//	    WithDetail("length", 8)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Kind sentinels usable with errors.Is.
var (
	ErrNotFound            = &Error{Type: ErrorTypeNotFound}
	ErrConnectorInitFailed = &Error{Type: ErrorTypeConnectorInitFailed}
	ErrIO                  = &Error{Type: ErrorTypeIO}
	ErrOutOfBounds         = &Error{Type: ErrorTypeOutOfBounds}
	ErrUnsupported         = &Error{Type: ErrorTypeUnsupported}
	ErrShortRead           = &Error{Type: ErrorTypeShortRead}
	ErrReleased            = &Error{Type: ErrorTypeReleased}
	ErrInventoryBusy       = &Error{Type: ErrorTypeInventoryBusy}
	ErrPluginLoadFailed    = &Error{Type: ErrorTypePluginLoadFailed}
	ErrValidation          = &Error{Type: ErrorTypeValidation}
)

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
//
// Example:
//
//	if length == 0 {
//	    return memerrors.New(memerrors.ErrorTypeValidation, "zero-length request")
//	}
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the outermost structured error in the chain is of the
// given type.
//
// Example:
//
//	if memerrors.IsType(err, memerrors.ErrorTypeNotFound) {
//	    return listAvailable()
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost structured error in the chain, or
// ErrorTypeInternal for foreign errors. It returns "" for a nil error.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
