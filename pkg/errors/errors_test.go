package errors

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// captureHandler records everything reported to it.
type captureHandler struct {
	errs       []*Error
	panics     []*PanicError
	invariants []*InvariantError
}

func (h *captureHandler) HandleError(err *Error) { h.errs = append(h.errs, err) }

func (h *captureHandler) HandlePanic(err *PanicError) { h.panics = append(h.panics, err) }

func (h *captureHandler) HandleInvariant(err *InvariantError) {
	h.invariants = append(h.invariants, err)
}

func TestErrorFormatting(t *testing.T) {
	underlying := stderrors.New("boom")
	err := &Error{Op: "state.Spawn", Kind: KindTask, Err: underlying}

	require.Equal(t, "state.Spawn [task]: boom", err.Error())
	require.ErrorIs(t, err, underlying)
}

func TestInvariantErrorFormatting(t *testing.T) {
	err := &InvariantError{Op: "state.UpdateGlobal", Detail: "global already leased"}
	require.Equal(t, "invariant violation in state.UpdateGlobal: global already leased", err.Error())
}

func TestKindStrings(t *testing.T) {
	cases := map[ErrorKind]string{
		KindUnknown:   "unknown",
		KindInvariant: "invariant",
		KindTask:      "task",
		KindPanic:     "panic",
		KindConfig:    "config",
	}
	for kind, want := range cases {
		require.Equal(t, want, kind.String())
	}
}

func TestReportSetsTimestampAndDelivers(t *testing.T) {
	handler := &captureHandler{}
	SetHandler(handler)
	defer SetHandler(nil)

	Report(&Error{Op: "state.Dispatch", Kind: KindTask, Err: stderrors.New("boom")})
	Report(nil)

	require.Len(t, handler.errs, 1)
	require.False(t, handler.errs[0].Timestamp.IsZero())
}

func TestReportInvariantDelivers(t *testing.T) {
	handler := &captureHandler{}
	SetHandler(handler)
	defer SetHandler(nil)

	ReportInvariant(&InvariantError{Op: "state.Update", Detail: "re-entrant update"})

	require.Len(t, handler.invariants, 1)
	require.False(t, handler.invariants[0].Timestamp.IsZero())
}

func TestRecoverReportsPanic(t *testing.T) {
	handler := &captureHandler{}
	SetHandler(handler)
	defer SetHandler(nil)

	func() {
		defer Recover("test.op")
		panic("caught")
	}()

	require.Len(t, handler.panics, 1)
	require.Equal(t, "test.op", handler.panics[0].Op)
	require.Equal(t, "caught", handler.panics[0].Value)
	require.NotEmpty(t, handler.panics[0].StackTrace)
}

func TestRecoverWithCallback(t *testing.T) {
	handler := &captureHandler{}
	SetHandler(handler)
	defer SetHandler(nil)

	var got any
	func() {
		defer RecoverWithCallback("test.op", func(r any) { got = r })
		panic(42)
	}()

	require.Equal(t, 42, got)
	require.Len(t, handler.panics, 1)
}

func TestLogHandlerWritesStructuredOutput(t *testing.T) {
	var sb strings.Builder
	logger := zerolog.New(&sb)
	handler := &LogHandler{Verbose: true, Logger: &logger}

	handler.HandleInvariant(&InvariantError{
		Op:         "state.UpdateGlobal",
		Detail:     "global already leased",
		StackTrace: "stack",
	})

	out := sb.String()
	require.Contains(t, out, `"op":"state.UpdateGlobal"`)
	require.Contains(t, out, "invariant violation")
	require.Contains(t, out, `"stack":"stack"`)
}

func TestSetHandlerNilRestoresDefault(t *testing.T) {
	SetHandler(&captureHandler{})
	SetHandler(nil)

	_, ok := DefaultHandler.(*LogHandler)
	require.True(t, ok)
}
