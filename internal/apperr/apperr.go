package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers. errors.Is(err, apperr.NotFound) works
// on any *Error of that kind, however deeply wrapped.
type Kind string

const (
	Validation      Kind = "validation"
	NotFound        Kind = "not_found"
	Conflict        Kind = "conflict"
	Dependency      Kind = "dependency"
	PaymentDeclined Kind = "payment_declined"
	Forbidden       Kind = "forbidden"
)

func (k Kind) Error() string { return string(k) }

// Error is the user-visible failure: a machine readable code plus a message
// that is safe to render. Err keeps the internal cause for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// WithDetails returns a copy carrying structured details for the caller.
func (e *Error) WithDetails(d any) *Error {
	c := *e
	c.Details = d
	return &c
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Validationf(code, format string, args ...any) *Error {
	return New(Validation, code, fmt.Sprintf(format, args...))
}

func NotFoundf(code, format string, args ...any) *Error {
	return New(NotFound, code, fmt.Sprintf(format, args...))
}

func Conflictf(code, format string, args ...any) *Error {
	return New(Conflict, code, fmt.Sprintf(format, args...))
}

// DependencyErr marks a failing collaborator (stock, payment, storage).
func DependencyErr(code string, err error) *Error {
	return Wrap(Dependency, code, "a downstream service failed, please retry later", err)
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err, or "" for errors outside the taxonomy.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}
