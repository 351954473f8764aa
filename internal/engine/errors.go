package engine

import (
	"errors"
	"strconv"
)

// Op names used in error context.
const (
	OpPing        = "ping"
	OpIndexExists = "indices.exists"
	OpCreateIndex = "indices.create"
	OpDropIndex   = "indices.delete"
	OpIndex       = "index"
	OpDelete      = "delete"
	OpSearch      = "search"
)

// Engine error types worth branching on.
const (
	TypeIndexNotFound      = "index_not_found_exception"
	TypeIndexAlreadyExists = "resource_already_exists_exception"
)

// Error wraps an engine failure with the operation and the engine's error type.
// Err is a domain classification sentinel (unavailable or rejected).
type Error struct {
	Op     string
	Status int
	Type   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Status != 0 {
		msg += " [" + strconv.Itoa(e.Status) + "]"
	}
	if e.Type != "" {
		msg += " " + e.Type
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsIndexNotFound reports whether err is an engine error for a missing index.
func IsIndexNotFound(err error) bool {
	var ee *Error
	return errors.As(err, &ee) && ee.Type == TypeIndexNotFound
}
