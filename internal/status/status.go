// Package status defines the response codes sent back to clients and the
// coded error type handlers return to select one.
package status

import (
	"errors"
	"fmt"
)

// Code is the machine-readable outcome of a request.
type Code uint8

const (
	OK Code = iota
	InvalidRequest
	NotFound
	Unsupported
	StorageFailure
	Internal
)

var codeNames = map[Code]string{
	OK:             "OK",
	InvalidRequest: "INVALID_REQUEST",
	NotFound:       "NOT_FOUND",
	Unsupported:    "UNSUPPORTED",
	StorageFailure: "STORAGE_FAILURE",
	Internal:       "INTERNAL",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", uint8(c))
}

// Error carries a Code alongside an internal message and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns OK for nil, the code of the first *Error in err's chain, or
// Internal when there is none.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// PublicMessage returns the text sent to clients for err. Causes are included
// for client errors only; storage and internal failures report their message
// without the underlying error.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Code {
	case StorageFailure, Internal:
		return e.Message
	}
	return e.Error()
}
