package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures so that callers can decide how to react. Only
// KindConflict is worth retrying.
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindAuthorization
	KindNotFound
	KindInvalidState
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth_error"
	case KindAuthorization:
		return "authorization_error"
	case KindNotFound:
		return "not_found_error"
	case KindInvalidState:
		return "invalid_state_error"
	case KindConflict:
		return "conflict_error"
	case KindValidation:
		return "validation_error"
	default:
		return "internal_error"
	}
}

// Error is the single error type returned by the coordinator and services.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the human-readable text shown to the caller.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Unauthenticated(op string) *Error {
	return newError(KindAuth, op, "user not authenticated")
}

func Unauthorized(op, format string, args ...any) *Error {
	return newError(KindAuthorization, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

func InvalidState(op, format string, args ...any) *Error {
	return newError(KindInvalidState, op, format, args...)
}

func Conflict(op string, err error) *Error {
	return &Error{Kind: KindConflict, Op: op, Msg: "concurrent update, please retry", Err: err}
}

func Invalid(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: err.Error(), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }

// Message extracts the human-readable message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return "internal error"
}
