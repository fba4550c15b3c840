// Package errors provides structured error handling for the pulse kernel.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindInvariant indicates a broken kernel invariant (caller or kernel bug).
	KindInvariant
	// KindTask indicates a failure reaching back into the app from a
	// spawned background task, such as dispatch after cancellation.
	KindTask
	// KindPanic indicates a recovered panic.
	KindPanic
	// KindConfig indicates a settings load or parse error.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvariant:
		return "invariant"
	case KindTask:
		return "task"
	case KindPanic:
		return "panic"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error represents a structured error in the pulse kernel.
type Error struct {
	// Op is the operation that failed (e.g., "state.Spawn").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "state.Task").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// InvariantError represents a broken kernel invariant. Invariant violations
// are programming errors: they are reported to the handler and then the
// offending operation panics rather than continuing with corrupted state.
type InvariantError struct {
	// Op is the operation that detected the violation (e.g., "state.UpdateEntity").
	Op string
	// Detail describes the broken invariant.
	Detail string
	// StackTrace contains the call stack at the time of detection.
	StackTrace string
	// Timestamp is when the violation was detected.
	Timestamp time.Time
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

// ErrorHandler receives errors reported by the pulse kernel.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *Error)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
	// HandleInvariant is called when a kernel invariant is violated,
	// immediately before the violating operation panics.
	HandleInvariant(err *InvariantError)
}
