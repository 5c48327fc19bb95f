package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of every input or invariant rejection.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks business-rule conflicts such as advancing a terminal order.
	ErrConflict = errors.New("order conflict")
	// ErrCorruptState is returned when a stored order carries an unknown state.
	ErrCorruptState = errors.New("order has unknown state")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictError signals that the order cannot make the requested move.
type ConflictError struct {
	Message string
}

func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
