// Package apperrors holds the error kinds every layer reports through.
// Services wrap one of the kind sentinels so handlers can map a failure to
// a status code with errors.Is, regardless of how deep it was raised.
package apperrors

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("already exists")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
)

var kinds = []error{
	ErrNotFound,
	ErrUnauthorized,
	ErrInvalidArgument,
	ErrAlreadyExists,
	ErrConflict,
	ErrUnavailable,
}

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// New returns an error of the given kind with msg as its text.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Newf is New with formatting.
func Newf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap tags cause with kind. Both remain reachable through errors.Is.
func Wrap(kind error, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &kindError{kind: kind, msg: msg, cause: cause}
}

// Kind returns the kind sentinel err carries, or nil when it carries none.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsRetryable reports whether err is a transient storage failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
