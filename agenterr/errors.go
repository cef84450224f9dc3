// Package agenterr defines the closed set of error kinds the agent core's
// turn loop distinguishes between. Every fallible operation in this module
// returns one of these (wrapped with fmt.Errorf %w) rather than an opaque
// error, so callers can branch on kind with errors.As.
package agenterr

import "fmt"

// Kind is the closed set of error categories from the error handling design.
type Kind string

const (
	// KindProtocol means the stream assembler observed an out-of-order or
	// otherwise invalid event sequence. Fatal: terminates the turn, no
	// auto-retry.
	KindProtocol Kind = "protocol_error"

	// KindSchema means a tool_use block's accumulated JSON failed to
	// validate against the tool's input schema. The tool_use block is kept;
	// its tool instance resolves immediately as an error result.
	KindSchema Kind = "schema_error"

	// KindStream means the underlying transport to the provider failed.
	// Triggers Failure Cleanup; agent status becomes error.
	KindStream Kind = "stream_error"

	// KindAborted means the user requested cancellation of the in-flight
	// stream. Triggers Failure Cleanup; status becomes stopped{aborted}.
	KindAborted Kind = "aborted"

	// KindTool covers generic I/O / not-found failures inside a tool.
	KindTool Kind = "tool_error"

	// KindPermissionDenied means the Permission Gate rejected a write or
	// command outright.
	KindPermissionDenied Kind = "permission_denied"

	// KindFileConflict means a tool could not proceed because the target
	// file had unsaved modifications it could not flush.
	KindFileConflict Kind = "file_conflict"
)

// Error is the concrete error type carrying a Kind alongside the usual
// message/wrapped-cause pair.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Recoverable reports whether the turn loop may continue after this error.
// Only ProtocolError terminates the turn outright.
func (e *Error) Recoverable() bool {
	return e.Kind != KindProtocol
}

// Is reports whether err, or any error in its Unwrap chain, is an *Error
// of the given kind. Callers can also use errors.As(err, &agentErr) and
// inspect Kind directly.
func Is(err error, kind Kind) bool {
	var ae *Error
	if as(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// as is a tiny local stand-in for errors.As over *Error, so this file does
// not import the stdlib errors package; kept private since agenterr.Is is
// the public surface.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
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
