package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrUnavailable      = errors.New("backend unavailable")
	ErrConflict         = errors.New("conflict")
	ErrSubmitInProgress = errors.New("order submission already in progress")

	// ErrCartReloaded comes from a cart store that was evicted while a caller
	// held it. The session's current store is in the registry.
	ErrCartReloaded = fmt.Errorf("cart was reloaded, please retry: %w", ErrConflict)
)

// ValidationError reports a rule violation on user input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsValidation helps callers tell input problems from infrastructure failures.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
