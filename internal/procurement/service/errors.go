package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure for the transport layer.
type Kind string

const (
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindValidation   Kind = "VALIDATION"
	KindNotFound     Kind = "NOT_FOUND"
	KindInternal     Kind = "INTERNAL"
)

// Error is the discriminated failure every service operation returns.
// Message is safe to show to the user; Err carries the wrapped cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of a service error, defaulting to INTERNAL
// for anything untyped.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func validationErr(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func notFoundErr(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func internalErr(op, message string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: message, Err: err}
}
