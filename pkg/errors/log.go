package errors

import (
	"os"

	"github.com/rs/zerolog"
)

var defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
	With().Timestamp().Logger()

// LogHandler is an ErrorHandler that logs errors through zerolog.
type LogHandler struct {
	// Verbose enables detailed output including stack traces.
	Verbose bool
	// Logger overrides the destination. Nil uses a console writer on stderr.
	Logger *zerolog.Logger
}

func (h *LogHandler) logger() *zerolog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return &defaultLogger
}

// HandleError logs an Error.
func (h *LogHandler) HandleError(err *Error) {
	if err == nil {
		return
	}
	evt := h.logger().Error().
		Str("op", err.Op).
		Str("kind", err.Kind.String()).
		Err(err.Err)
	if h.Verbose && err.StackTrace != "" {
		evt = evt.Str("stack", err.StackTrace)
	}
	evt.Msg("kernel error")
}

// HandlePanic logs a PanicError.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	evt := h.logger().Error().
		Str("op", err.Op).
		Interface("value", err.Value)
	if h.Verbose && err.StackTrace != "" {
		evt = evt.Str("stack", err.StackTrace)
	}
	evt.Msg("recovered panic")
}

// HandleInvariant logs an InvariantError. The kernel panics right after
// reporting, so this is the last chance to get the violation on record.
func (h *LogHandler) HandleInvariant(err *InvariantError) {
	if err == nil {
		return
	}
	evt := h.logger().Error().
		Str("op", err.Op).
		Str("detail", err.Detail)
	if h.Verbose && err.StackTrace != "" {
		evt = evt.Str("stack", err.StackTrace)
	}
	evt.Msg("invariant violation")
}
