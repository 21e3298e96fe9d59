package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a story or scene does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidTransition is returned when a status update would break the
	// story lifecycle (e.g. completing a pending story, or touching a
	// terminal one)
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateScene is returned when a scene with the same
	// (story_id, sequence) is already persisted
	ErrDuplicateScene = errors.New("scene already persisted")

	// ErrAlreadyClaimed is returned when another worker holds a fresh claim
	// on the story
	ErrAlreadyClaimed = errors.New("story claimed by another worker")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
