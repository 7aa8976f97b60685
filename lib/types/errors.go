package types

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange = errors.New("out of range")
	ErrMalformed  = errors.New("malformed")
	ErrRequired   = errors.New("required")
)

// ValidationError is raised before any I/O happens.
type ValidationError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func outOfRange(field string, v interface{}) error {
	return &ValidationError{Field: field, Value: v, Err: ErrOutOfRange}
}

func malformed(field string, v interface{}) error {
	return &ValidationError{Field: field, Value: v, Err: ErrMalformed}
}

func required(field string) error {
	return &ValidationError{Field: field, Value: "", Err: ErrRequired}
}
