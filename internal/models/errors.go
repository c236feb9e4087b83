package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, the services and the HTTP layer.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyClaimed       = errors.New("item already reserved")
	ErrGroupFundingDisabled = errors.New("group funding is not enabled for this item")
	ErrBelowMinimum         = errors.New("amount is below the minimum contribution")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrTransient            = errors.New("store temporarily unavailable")

	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
)

// ValidationError describes an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsRetryable reports whether the caller may retry the same request later.
// Only store unavailability qualifies; every other failure is permanent for
// the given input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
