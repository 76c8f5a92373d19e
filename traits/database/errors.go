package database

import (
	"errors"
	"fmt"
)

// ErrorKind classifies storage failures.
type ErrorKind string

const (
	ErrorConnection ErrorKind = "CONNECTION_ERROR"
	ErrorSchema     ErrorKind = "SCHEMA_ERROR"
	ErrorInsert     ErrorKind = "INSERT_ERROR"
	ErrorQuery      ErrorKind = "QUERY_ERROR"
	ErrorNotFound   ErrorKind = "NOT_FOUND"
)

// Error is the error type returned by the storage layer.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("database: %s (%s)", e.Kind, e.Op)
	}
	return fmt.Sprintf("database: %s (%s): %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError wraps err with a kind and the failed operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var dbErr *Error
	return errors.As(err, &dbErr) && dbErr.Kind == kind
}
