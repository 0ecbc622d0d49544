// Package errs defines the error taxonomy from spec section 7: the
// engine- and transfer-level failure kinds an InputStream can surface
// to its caller, and which of them are fatal versus recoverable-by-retry
// at the host level.
package errs

import "fmt"

// Kind classifies a failure the way spec section 7 names them.
type Kind int

const (
	// EngineInit means the transfer engine's global init failed.
	EngineInit Kind = iota
	// EngineMulti means a call into the shared multi-transfer object failed.
	EngineMulti
	// EasyInit means a per-handle init/setopt equivalent failed.
	EasyInit
	// TransferFailure means the transfer completed with a non-OK code;
	// the message carries the engine's per-handle error text.
	TransferFailure
	// HttpStatus means the transfer completed OK but the HTTP status
	// fell outside [200, 300).
	HttpStatus
	// RangeRejected is HttpStatus specifically after a seek-induced
	// reopen (the server rejected the Range request).
	RangeRejected
)

func (k Kind) String() string {
	switch k {
	case EngineInit:
		return "EngineInit"
	case EngineMulti:
		return "EngineMulti"
	case EasyInit:
		return "EasyInit"
	case TransferFailure:
		return "TransferFailure"
	case HttpStatus:
		return "HttpStatus"
	case RangeRejected:
		return "RangeRejected"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with its Kind.
type Error struct {
	Kind   Kind
	Status int // HTTP status, valid for HttpStatus/RangeRejected
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fatal reports whether this error kind is unrecoverable and must be
// reported to the host rather than retried. EngineInit is always
// fatal. EngineMulti is fatal only when it occurs during engine
// construction, but this port's Engine has no init step that can
// produce one (see DESIGN.md) -- NewEngine cannot fail -- so no code
// path currently constructs an init-time EngineMulti error, and Fatal
// only checks EngineInit. Every other kind, including a runtime
// EngineMulti (which AbortAll distributes to every active stream
// instead of treating as host-fatal), is recoverable-by-retry.
func (e *Error) Fatal() bool {
	return e.Kind == EngineInit
}

// New constructs an *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// HTTPStatusError builds a HttpStatus (or RangeRejected, when
// afterSeek is true) error for a completed transfer whose status fell
// outside [200, 300).
func HTTPStatusError(status int, afterSeek bool) *Error {
	kind := HttpStatus
	if afterSeek {
		kind = RangeRejected
	}
	return &Error{Kind: kind, Status: status, Msg: "unexpected HTTP status"}
}
