package dbg

import (
	"errors"
	"fmt"
)

// Code classifies session failures.
type Code int

const (
	// BackendUnavailable: the backend failed to spawn, never became reachable
	// or was torn down. Fatal to the session.
	BackendUnavailable Code = iota + 1
	// BackendCallFailed: a single RPC returned an application error.
	BackendCallFailed
	// UnsupportedOperation is acknowledged, never failed.
	UnsupportedOperation
	// InvalidRequest: the request could not be understood.
	InvalidRequest
)

func (c Code) String() string {
	switch c {
	case BackendUnavailable:
		return "BackendUnavailable"
	case BackendCallFailed:
		return "BackendCallFailed"
	case UnsupportedOperation:
		return "UnsupportedOperation"
	case InvalidRequest:
		return "InvalidRequest"
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the error type returned by the backend and session layers.
type Error struct {
	Code    Code
	Op      string
	Message string
	cause   error
}

// Sentinels for errors.Is; only the code is compared.
var (
	ErrBackendUnavailable = &Error{Code: BackendUnavailable}
	ErrBackendCallFailed  = &Error{Code: BackendCallFailed}
	ErrUnsupported        = &Error{Code: UnsupportedOperation}
	ErrInvalidRequest     = &Error{Code: InvalidRequest}
)

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func Unavailable(op string, cause error) *Error {
	return &Error{Code: BackendUnavailable, Op: op, cause: cause}
}

// CallFailed keeps the backend message verbatim.
func CallFailed(op, message string) *Error {
	return &Error{Code: BackendCallFailed, Op: op, Message: message}
}

func Unsupported(op string) *Error {
	return &Error{Code: UnsupportedOperation, Op: op, Message: "not supported"}
}

func Invalid(op string, cause error) *Error {
	return &Error{Code: InvalidRequest, Op: op, cause: cause}
}

// CodeOf returns the code carried by err, or 0 for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
