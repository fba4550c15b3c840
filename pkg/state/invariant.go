package state

import (
	"fmt"
	"time"

	"github.com/go-drift/pulse/pkg/errors"
)

// invariantf reports a broken kernel invariant to the global error handler
// and panics. Invariant violations are programming errors, not recoverable
// conditions; the enclosing update cycle is aborted loudly.
func invariantf(op, format string, args ...any) {
	err := &errors.InvariantError{
		Op:         op,
		Detail:     fmt.Sprintf(format, args...),
		StackTrace: errors.CaptureStack(),
		Timestamp:  time.Now(),
	}
	errors.ReportInvariant(err)
	panic(err)
}
