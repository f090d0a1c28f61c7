// Package turtlerr defines the error taxonomy shared by every turtlcore
// subsystem. Each Kind is a distinct variant (never a bare string) so
// callers can branch on failure class instead of matching message text.
package turtlerr

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind enumerates the error classes from the error-handling design.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadValue
	KindMissingField
	KindMissingData
	KindMissingCommand
	KindNotFound
	KindPermissionDenied
	KindValidation
	KindConnectionRequired
	KindCrypto
	KindAuthentication // Crypto::Authentication, split out: never retried
	KindAPI            // non-2xx HTTP response from the Turtl server
	KindIO
	KindTryAgain
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindBadValue:
		return "bad_value"
	case KindMissingField:
		return "missing_field"
	case KindMissingData:
		return "missing_data"
	case KindMissingCommand:
		return "missing_command"
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindValidation:
		return "validation"
	case KindConnectionRequired:
		return "connection_required"
	case KindCrypto:
		return "crypto_error"
	case KindAuthentication:
		return "crypto_authentication"
	case KindAPI:
		return "api"
	case KindIO:
		return "io_error"
	case KindTryAgain:
		return "try_again"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "generic"
	}
}

// ValidationFailure is one (field, reason) pair for a Validation error.
type ValidationFailure struct {
	Field  string
	Reason string
}

// Error is turtlcore's wrapped error type. It carries the originating Kind
// through any number of wraps, plus a file+line for diagnostics, mirroring
// the Rust implementation's Wrapped(function, file, line, err) variant.
type Error struct {
	Kind Kind
	Msg  string

	// Status/Body are populated for KindAPI.
	Status int
	Body   string

	// Fields is populated for KindValidation.
	Fields []ValidationFailure

	File string
	Line int
	Func string

	wrapped error
}

func (e *Error) Error() string {
	if e.Kind == KindAPI {
		return fmt.Sprintf("api: status=%d: %s", e.Status, e.Msg)
	}
	if e.Kind == KindValidation {
		return fmt.Sprintf("validation: %s (%d field errors)", e.Msg, len(e.Fields))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is lets errors.Is match on Kind via a sentinel *Error{Kind: K}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func new(kind Kind, msg string) *Error {
	e := &Error{Kind: kind, Msg: msg}
	if _, file, line, ok := runtime.Caller(2); ok {
		e.File = file
		e.Line = line
	}
	return e
}

func BadValue(format string, args ...interface{}) error {
	return new(KindBadValue, fmt.Sprintf(format, args...))
}

func MissingField(name string) error {
	return new(KindMissingField, name)
}

func MissingData(format string, args ...interface{}) error {
	return new(KindMissingData, fmt.Sprintf(format, args...))
}

func MissingCommand(name string) error {
	return new(KindMissingCommand, name)
}

func NotFound(format string, args ...interface{}) error {
	return new(KindNotFound, fmt.Sprintf(format, args...))
}

func PermissionDenied(format string, args ...interface{}) error {
	return new(KindPermissionDenied, fmt.Sprintf(format, args...))
}

func Validation(objType string, fields []ValidationFailure) error {
	e := new(KindValidation, objType)
	e.Fields = fields
	return e
}

func ConnectionRequired() error {
	return new(KindConnectionRequired, "operation requires a live connection")
}

func Crypto(format string, args ...interface{}) error {
	return new(KindCrypto, fmt.Sprintf(format, args...))
}

// Authentication marks an AEAD tag-mismatch / tampered-envelope failure.
// Per the error design this is never retried.
func Authentication(format string, args ...interface{}) error {
	return new(KindAuthentication, fmt.Sprintf(format, args...))
}

func API(status int, body string) error {
	e := new(KindAPI, fmt.Sprintf("unexpected status %d", status))
	e.Status = status
	e.Body = body
	return e
}

func IO(format string, args ...interface{}) error {
	return new(KindIO, fmt.Sprintf(format, args...))
}

func TryAgain() error {
	return new(KindTryAgain, "try again")
}

func NotImplemented(what string) error {
	return new(KindNotImplemented, what)
}

// Wrap attaches file+line context to err while preserving its Kind (and any
// API/Validation payload) so a dispatcher further up the stack can still
// branch on it. If err is not already a *Error, it is classified as
// KindUnknown with the original error's message retained as cause.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	var inner *Error
	if asErr, ok := err.(*Error); ok {
		inner = &Error{
			Kind:   asErr.Kind,
			Msg:    context + ": " + asErr.Msg,
			Status: asErr.Status,
			Body:   asErr.Body,
			Fields: asErr.Fields,
		}
	} else {
		inner = &Error{Kind: KindUnknown, Msg: context + ": " + err.Error()}
	}
	inner.wrapped = err
	if _, file, line, ok := runtime.Caller(1); ok {
		inner.File = file
		inner.Line = line
	}
	return inner
}

// KindOf extracts the Kind of err, walking wrapped chains. Returns
// KindUnknown if err is nil or not one of ours.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAuthentication reports whether err is (or wraps) a Crypto::Authentication
// failure — the one error class that must never be retried.
func IsAuthentication(err error) bool {
	return KindOf(err) == KindAuthentication
}

// IsNotFound reports whether err is (or wraps) a NotFound failure — benign
// when raised by key search (the model simply stays encrypted).
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
