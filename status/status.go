// Package status defines the error taxonomy shared by every handler in the
// packaging pipeline. A handler's Status return value is just a plain
// error: nil means OK, and any non-nil error is expected to be (or wrap) a
// *status.Error carrying one of the Codes below.
package status

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure.
type Code int

// Error taxonomy, per the packaging pipeline's error handling design.
const (
	OK Code = iota
	InvalidArgument
	ParseError
	UnsupportedStream
	EncryptionError
	ServerError
	TimeOut
	EndOfStream
	Cancelled
	Unknown
	Internal
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidArgument:
		return "InvalidArgument"
	case ParseError:
		return "ParseError"
	case UnsupportedStream:
		return "UnsupportedStream"
	case EncryptionError:
		return "EncryptionError"
	case ServerError:
		return "ServerError"
	case TimeOut:
		return "TimeOut"
	case EndOfStream:
		return "EndOfStream"
	case Cancelled:
		return "Cancelled"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is a taxonomy-coded error. EndOfStream is the one code that is not
// really an error; it is used internally as an out-of-band signal and
// callers should check for it with Is before logging it as a failure.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error with the given code that wraps cause.
func Wrap(code Code, cause error, msg string) error {
	return &Error{Code: code, Msg: msg, Err: cause}
}

// CodeOf extracts the Code from err, returning OK if err is nil and Unknown
// if err is not (and does not wrap) a *Error.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return Unknown
}

// IsEndOfStream reports whether err signals end-of-stream rather than a
// genuine failure.
func IsEndOfStream(err error) bool {
	return CodeOf(err) == EndOfStream
}

// IsCancelled reports whether err signals user-requested cancellation.
func IsCancelled(err error) bool {
	return CodeOf(err) == Cancelled
}

// ErrEndOfStream is the canonical EndOfStream sentinel, returned by origin
// handlers and demuxers when input is exhausted.
var ErrEndOfStream = New(EndOfStream, "end of stream")

// ErrCancelled is the canonical Cancelled sentinel, returned when an origin
// handler's Cancel was observed by its producer loop.
var ErrCancelled = New(Cancelled, "cancelled")
