package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a resource is not found.
var ErrNotFound = errors.New("resource not found")

// ErrorKind is a stable, non-sensitive classification of a failed operation.
type ErrorKind string

const (
	KindMalformedState          ErrorKind = "malformed_state"
	KindUnknownOrExpiredAttempt ErrorKind = "unknown_or_expired_attempt"
	KindStateMismatch           ErrorKind = "state_mismatch"
	KindAccessDenied            ErrorKind = "access_denied"
	KindExchangeFailure         ErrorKind = "exchange_failure"
	KindTransportFailure        ErrorKind = "transport_failure"
	KindPersistenceFailure      ErrorKind = "persistence_failure"
	KindServiceNotFound         ErrorKind = "service_not_found"
	KindNotLinked               ErrorKind = "not_linked"
	KindInvalidArgument         ErrorKind = "invalid_argument"
	KindInternal                ErrorKind = "internal"
)

var publicMessages = map[ErrorKind]string{
	KindMalformedState:          "the authorization response could not be read",
	KindUnknownOrExpiredAttempt: "no pending authorization for this service, start again",
	KindStateMismatch:           "the authorization response does not match the pending request",
	KindAccessDenied:            "the provider denied access",
	KindExchangeFailure:         "failed to obtain access token",
	KindTransportFailure:        "the provider could not be reached",
	KindPersistenceFailure:      "failed to store the service token",
	KindServiceNotFound:         "service not found",
	KindNotLinked:               "service is not linked",
	KindInvalidArgument:         "invalid request",
	KindInternal:                "internal error",
}

// PublicMessage returns the fixed text shown to callers for a kind.
// It never contains provider output or token material.
func (k ErrorKind) PublicMessage() string {
	if msg, ok := publicMessages[k]; ok {
		return msg
	}
	return publicMessages[KindInternal]
}

// Error is the tagged failure returned by the linking flow.
type Error struct {
	Kind  ErrorKind
	Alias string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Alias != "" {
		msg += " (" + e.Alias + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so the exported
// sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Alias == "" || t.Alias == e.Alias) && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrMalformedState          = &Error{Kind: KindMalformedState}
	ErrUnknownOrExpiredAttempt = &Error{Kind: KindUnknownOrExpiredAttempt}
	ErrStateMismatch           = &Error{Kind: KindStateMismatch}
	ErrAccessDenied            = &Error{Kind: KindAccessDenied}
	ErrExchangeFailure         = &Error{Kind: KindExchangeFailure}
	ErrTransportFailure        = &Error{Kind: KindTransportFailure}
	ErrPersistenceFailure      = &Error{Kind: KindPersistenceFailure}
	ErrServiceNotFound         = &Error{Kind: KindServiceNotFound}
	ErrNotLinked               = &Error{Kind: KindNotLinked}
	ErrInvalidArgument         = &Error{Kind: KindInvalidArgument}
)

// NewError builds a tagged error for alias wrapping err.
func NewError(kind ErrorKind, alias string, err error) *Error {
	return &Error{Kind: kind, Alias: alias, Err: err}
}

// Errorf builds a tagged error with a formatted cause.
func Errorf(kind ErrorKind, alias string, format string, args ...any) *Error {
	return &Error{Kind: kind, Alias: alias, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies err. Untagged errors are reported as KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
