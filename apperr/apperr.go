// Package apperr defines the error classes surfaced to the user.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a class of user-facing failure.
type Code string

const (
	ErrInvalidInput  Code = "INVALID_INPUT"
	ErrPrecondition  Code = "PRECONDITION"
	ErrNotFound      Code = "NOT_FOUND"
	ErrAlreadyExists Code = "ALREADY_EXISTS"
	ErrInternal      Code = "INTERNAL"
)

// Error is a structured error with a code and optional details.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidInput creates an error for rejected user input such as an illegal name.
func NewInvalidInput(msg string) *Error {
	return &Error{Code: ErrInvalidInput, Message: msg}
}

// NewPrecondition creates an error for an operation that cannot start in the current state.
func NewPrecondition(msg string) *Error {
	return &Error{Code: ErrPrecondition, Message: msg}
}

// NewNotFound creates an error for an unknown identifier.
func NewNotFound(kind, identifier string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewAlreadyExists creates an error for a case-insensitive name collision.
func NewAlreadyExists(kind, name string) *Error {
	return &Error{
		Code:    ErrAlreadyExists,
		Message: fmt.Sprintf("%s %q already exists", kind, name),
		Details: map[string]any{"name": name},
	}
}

// NewInternal wraps an unexpected failure.
func NewInternal(msg string, err error) *Error {
	return &Error{Code: ErrInternal, Message: msg, Err: err}
}

// Is reports whether err (or anything it wraps) is an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
